package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/engine"
)

var (
	dbPath string
	dim    int
	metric string
)

var rootCmd = &cobra.Command{
	Use:   "hatvec",
	Short: "CLI tool for the hierarchical attention tree vector index",
	Long:  `A command-line interface for managing a session/document/chunk vector memory index.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new empty index file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := hatvec.DefaultConfig(dim)
		if err := applyMetric(&cfg); err != nil {
			return err
		}
		eng := engine.New(cfg)
		if err := eng.Save(dbPath); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
		fmt.Printf("index initialized at %s with %d dimensions\n", dbPath, dim)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Place a vector in the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		payload, _ := cmd.Flags().GetString("payload")
		idStr, _ := cmd.Flags().GetString("id")
		newSession, _ := cmd.Flags().GetBool("new-session")
		newDocument, _ := cmd.Flags().GetBool("new-document")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		eng, err := openEngine(len(vector))
		if err != nil {
			return err
		}

		if newSession {
			eng.NewSession()
		}
		if newDocument {
			eng.NewDocument()
		}

		if idStr != "" {
			id, err := hatvec.ParseId(idStr)
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			if err := eng.PlaceWithID(id, vector, hatvec.Blob(payload)); err != nil {
				return fmt.Errorf("failed to place: %w", err)
			}
			fmt.Printf("placed %s\n", id)
		} else {
			id, err := eng.Place(vector, hatvec.Blob(payload))
			if err != nil {
				return fmt.Errorf("failed to place: %w", err)
			}
			fmt.Printf("placed %s\n", id)
		}

		return eng.Save(dbPath)
	},
}

var nearCmd = &cobra.Command{
	Use:   "near",
	Short: "Find the top-k chunks nearest a query vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		outputJSON, _ := cmd.Flags().GetBool("json")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		eng, err := openEngine(len(vector))
		if err != nil {
			return err
		}

		hits, err := eng.Near(vector, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return printHits(hits, outputJSON)
	},
}

var nearSessionsCmd = &cobra.Command{
	Use:   "near-sessions",
	Short: "Find the top-k sessions nearest a query vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		outputJSON, _ := cmd.Flags().GetBool("json")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		eng, err := openEngine(len(vector))
		if err != nil {
			return err
		}
		hits, err := eng.NearSessions(vector, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return printHits(hits, outputJSON)
	},
}

var nearDocumentsCmd = &cobra.Command{
	Use:   "near-documents",
	Short: "Find the top-k documents within a session nearest a query vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		sessionStr, _ := cmd.Flags().GetString("session")
		k, _ := cmd.Flags().GetInt("top-k")
		outputJSON, _ := cmd.Flags().GetBool("json")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		sessionID, err := hatvec.ParseId(sessionStr)
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		eng, err := openEngine(len(vector))
		if err != nil {
			return err
		}
		hits, err := eng.NearDocuments(sessionID, vector, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return printHits(hits, outputJSON)
	},
}

var nearInDocumentCmd = &cobra.Command{
	Use:   "near-in-document",
	Short: "Find the top-k chunks within a document nearest a query vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		documentStr, _ := cmd.Flags().GetString("document")
		k, _ := cmd.Flags().GetInt("top-k")
		outputJSON, _ := cmd.Flags().GetBool("json")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		documentID, err := hatvec.ParseId(documentStr)
		if err != nil {
			return fmt.Errorf("invalid document id: %w", err)
		}
		eng, err := openEngine(len(vector))
		if err != nil {
			return err
		}
		hits, err := eng.NearInDocument(documentID, vector, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return printHits(hits, outputJSON)
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a maintenance pass over the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		eng, err := openEngine(dim)
		if err != nil {
			return err
		}

		switch mode {
		case "light":
			eng.Consolidate(engine.ConsolidateLight)
		case "full":
			eng.Consolidate(engine.ConsolidateFull)
		default:
			return fmt.Errorf("unknown consolidate mode: %s", mode)
		}

		if err := eng.Save(dbPath); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
		fmt.Printf("consolidated (%s)\n", mode)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputJSON, _ := cmd.Flags().GetBool("json")

		eng, err := openEngine(dim)
		if err != nil {
			return err
		}
		stats := eng.Stats()

		if outputJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Println("Index Statistics:")
			fmt.Printf("  Chunks:    %d\n", stats.ChunkCount)
			fmt.Printf("  Documents: %d\n", stats.DocumentCount)
			fmt.Printf("  Sessions:  %d\n", stats.SessionCount)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session or document as an ATNB batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionStr, _ := cmd.Flags().GetString("session")
		documentStr, _ := cmd.Flags().GetString("document")
		out, _ := cmd.Flags().GetString("out")

		if (sessionStr == "") == (documentStr == "") {
			return fmt.Errorf("exactly one of --session or --document is required")
		}

		eng, err := openEngine(dim)
		if err != nil {
			return err
		}

		var data []byte
		if sessionStr != "" {
			id, err := hatvec.ParseId(sessionStr)
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			data, err = eng.ExportSession(id)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
		} else {
			id, err := hatvec.ParseId(documentStr)
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			data, err = eng.ExportDocument(id)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
		}

		if out == "" || out == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(out, data, 0o644)
	},
}

func applyMetric(cfg *hatvec.Config) error {
	switch metric {
	case "", "cosine":
		cfg.Metric = hatvec.MetricCosine
	case "euclidean":
		cfg.Metric = hatvec.MetricEuclidean
	case "dot":
		cfg.Metric = hatvec.MetricDot
	default:
		return fmt.Errorf("unknown metric: %s", metric)
	}
	return nil
}

func parseVector(str string) ([]float32, error) {
	if str == "" {
		return nil, fmt.Errorf("vector is required")
	}
	parts := strings.Split(str, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func printHits(hits []hatvec.Hit, outputJSON bool) error {
	if outputJSON {
		data, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("found %d results:\n", len(hits))
	for i, h := range hits {
		fmt.Printf("%d. %s (score: %.4f)\n", i+1, h.ID, h.Score)
	}
	return nil
}

// openEngine loads the index at dbPath if it exists, or creates a fresh
// one at the given dimensionality otherwise. expectedDim of 0 accepts
// whatever dimension a loaded file declares.
func openEngine(expectedDim int) (*engine.Engine, error) {
	if _, err := os.Stat(dbPath); err == nil {
		eng, err := engine.Load(dbPath, expectedDim)
		if err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
		return eng, nil
	}
	if expectedDim == 0 {
		return nil, fmt.Errorf("index does not exist and no dimension was given: %s", dbPath)
	}
	cfg := hatvec.DefaultConfig(expectedDim)
	if err := applyMetric(&cfg); err != nil {
		return nil, err
	}
	return engine.New(cfg), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "path", "p", "memory.hatx", "Index file path")
	rootCmd.PersistentFlags().IntVarP(&dim, "dim", "n", 0, "Vector dimensions (required for init)")
	rootCmd.PersistentFlags().StringVarP(&metric, "metric", "m", "cosine", "Proximity metric (cosine/euclidean/dot)")

	addCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	addCmd.Flags().String("payload", "", "Opaque payload bytes (as text)")
	addCmd.Flags().String("id", "", "Caller-supplied hex id (32 chars)")
	addCmd.Flags().Bool("new-session", false, "Start a fresh session before placing")
	addCmd.Flags().Bool("new-document", false, "Start a fresh document before placing")
	addCmd.MarkFlagRequired("vector")

	nearCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	nearCmd.Flags().Int("top-k", 10, "Number of results")
	nearCmd.Flags().Bool("json", false, "Output as JSON")
	nearCmd.MarkFlagRequired("vector")

	nearSessionsCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	nearSessionsCmd.Flags().Int("top-k", 10, "Number of results")
	nearSessionsCmd.Flags().Bool("json", false, "Output as JSON")
	nearSessionsCmd.MarkFlagRequired("vector")

	nearDocumentsCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	nearDocumentsCmd.Flags().String("session", "", "Session id to scope the search to")
	nearDocumentsCmd.Flags().Int("top-k", 10, "Number of results")
	nearDocumentsCmd.Flags().Bool("json", false, "Output as JSON")
	nearDocumentsCmd.MarkFlagRequired("vector")
	nearDocumentsCmd.MarkFlagRequired("session")

	nearInDocumentCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	nearInDocumentCmd.Flags().String("document", "", "Document id to scope the search to")
	nearInDocumentCmd.Flags().Int("top-k", 10, "Number of results")
	nearInDocumentCmd.Flags().Bool("json", false, "Output as JSON")
	nearInDocumentCmd.MarkFlagRequired("vector")
	nearInDocumentCmd.MarkFlagRequired("document")

	consolidateCmd.Flags().String("mode", "light", "Maintenance depth (light/full)")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	exportCmd.Flags().String("session", "", "Session id to export")
	exportCmd.Flags().String("document", "", "Document id to export")
	exportCmd.Flags().String("out", "-", "Output file path, or - for stdout")

	rootCmd.AddCommand(
		initCmd,
		addCmd,
		nearCmd,
		nearSessionsCmd,
		nearDocumentsCmd,
		nearInDocumentCmd,
		consolidateCmd,
		statsCmd,
		exportCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

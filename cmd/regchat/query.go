package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regchat/cli/internal/retrieve"
)

var queryTopK int

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Show the raw chunks retrieval would feed the model",
	Long: `Embeds the question and prints the top matching chunks with their
scores and source pages, without calling the completion model. Useful for
checking what an answer would be grounded on.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	idx, err := newIndex(cfg, database)
	if err != nil {
		return err
	}
	if err := idx.VerifyModel(cmd.Context(), cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDims); err != nil {
		return err
	}

	topK := queryTopK
	if topK <= 0 {
		topK = cfg.Processing.TopK
	}

	retriever := retrieve.NewRetriever(embedder, idx, topK)
	matches, err := retriever.Retrieve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matches. Has anything been ingested yet?")
		return nil
	}

	for i, m := range matches {
		fmt.Printf("%d. [%.3f] %s, page %d (%s)\n", i+1, m.Score, m.Source, m.PageNumber, m.ChunkID)
		fmt.Println(indent(snippet(m.Text, 300)))
	}
	return nil
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func indent(text string) string {
	return "   " + strings.ReplaceAll(text, "\n", "\n   ")
}

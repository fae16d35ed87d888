package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/domain"
	"nexus/internal/llm"
)

func searchCMD(opts *rootOptions) *cobra.Command {
	var (
		topK      int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the context retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("top-k") {
				topK = a.Config.Retrieval.TopK
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.Config.Retrieval.Threshold
			}

			res, err := a.Retriever.RetrieveWith(cmd.Context(), strings.Join(args, " "), topK, threshold)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Context)
			if len(res.Matches) > 0 {
				fmt.Fprintln(out)
				for i, m := range res.Matches {
					fmt.Fprintf(out, "%d. %s  similarity=%.3f\n", i+1, m.Source(), m.Similarity)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "maximum number of chunks")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum cosine similarity")
	return cmd
}

func askCMD(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			chat, err := a.Chat()
			if err != nil {
				return err
			}
			ans, err := chat.Answer(cmd.Context(), []domain.Message{{Role: llm.RoleUser, Content: strings.Join(args, " ")}})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Content)
			if srcs := domain.UniqueSources(ans.Sources); len(srcs) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(srcs, ", "))
			}
			return nil
		},
	}
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/recall/pkg/llm"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// emptyAnswerMessage explains an empty answer. Only in mock mode does it
// mean retrieval found nothing.
func emptyAnswerMessage(mode string) string {
	if mode == llm.ModeMock {
		return "No matching documents."
	}
	return "The model returned an empty answer."
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			service, documentStore, err := newService(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer documentStore.Close()

			color.Cyan("\nChat with your knowledge base (%s mode, type 'exit' to quit)", service.Mode())

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			assistantPrompt := color.New(color.FgCyan).PrintfFunc()

			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				query := strings.TrimSpace(scanner.Text())
				if strings.ToLower(query) == "exit" {
					break
				}
				if query == "" {
					continue
				}

				spinner := getSpinner("Thinking...")
				answer, err := service.Query(ctx, query)
				spinner.Finish()

				if err != nil {
					color.Red("Error: %v\n", err)
					continue
				}
				if answer.Text == "" {
					color.Yellow("%s\n", emptyAnswerMessage(service.Mode()))
					continue
				}
				assistantPrompt("Assistant: %s\n", answer.Text)
			}

			fmt.Println()
			return scanner.Err()
		},
	}
}

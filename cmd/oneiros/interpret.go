package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/app/studio"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/config"
	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret <audio-file>",
	Short: "Interpret one recorded dream",
	Long: `Play a recorded dream narration through the pipeline and print the
resulting dream card.

Examples:
  oneiros interpret dream.webm
  oneiros interpret --tier 2K --save-image dream.png dream.ogg
  oneiros interpret --chat dream.m4a`,
	Args: cobra.ExactArgs(1),
	RunE: runInterpret,
}

func init() {
	interpretCmd.Flags().String("tier", "", "image size: 1K, 2K or 4K (defaults to studio.default_image_size)")
	interpretCmd.Flags().Bool("chat", false, "talk about the dream once it is interpreted")
	interpretCmd.Flags().String("save-image", "", "write the generated image to this file")
	interpretCmd.Flags().StringP("output", "o", "card", "output format: card, json or yaml")
	interpretCmd.Flags().Bool("copy", false, "copy the transcription and insight to the clipboard")
}

// cliEvents prints status lines on the terminal.
type cliEvents struct {
	out io.Writer
}

func (e cliEvents) Publish(ev domain.Event) {
	switch ev.Type {
	case domain.EventStatus:
		if ev.Status != "" {
			fmt.Fprintln(e.out, styles.Status.Render(ev.Status))
		}
	case domain.EventNotice:
		fmt.Fprintln(e.out, styles.Notice.Render(ev.Notice))
	}
}

func runInterpret(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	observability.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	keys := credential.NewStore(cfg.LLM.APIKey)
	var selector domain.KeySelector = credential.Ambient{}
	if needsKey(cfg) {
		selector = credential.NewPromptSelector(keys, in, out)
	}

	gw, err := buildGateway(ctx, cfg, keys, selector)
	if err != nil {
		return err
	}

	dev := capture.NewFileDevice(args[0], cfg.Capture.ChunkSize)
	st := buildStudio(cfg, gw, dev, selector, cliEvents{out: out})

	if v, _ := cmd.Flags().GetString("tier"); v != "" {
		tier, err := domain.ParseImageSize(v)
		if err != nil {
			return err
		}
		if err := st.SelectTier(tier); err != nil {
			return err
		}
	}

	format, _ := cmd.Flags().GetString("output")
	if _, err := formatDream(&domain.DreamEntry{}, format); err != nil {
		return err
	}

	entry, err := interpret(ctx, st)
	if err != nil {
		if errorsx.IsCredential(err) {
			fmt.Fprintln(out, styles.Notice.Render("The selected key can't reach the model. Run the command again with another key."))
		}
		return err
	}

	rendered, err := formatDream(entry, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rendered)

	if path, _ := cmd.Flags().GetString("save-image"); path != "" {
		if err := saveImage(path, entry.ImageURL); err != nil {
			return err
		}
		fmt.Fprintln(out, styles.Muted.Render("image written to "+path))
	}

	if copyOut, _ := cmd.Flags().GetBool("copy"); copyOut {
		if err := clipboard.WriteAll(clipboardText(entry)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(out, styles.Muted.Render("dream copied to clipboard"))
		}
	}

	if withChat, _ := cmd.Flags().GetBool("chat"); withChat {
		return chatLoop(ctx, st, entry.ID, in, out)
	}
	return nil
}

// interpret captures the whole file, waits for the pipeline and returns the entry.
func interpret(ctx context.Context, st *studio.Studio) (*domain.DreamEntry, error) {
	if err := st.StartCapture(ctx); err != nil {
		return nil, err
	}
	if err := st.WaitCapture(ctx); err != nil {
		return nil, err
	}

	results, err := st.StopCapture(ctx)
	if err != nil {
		return nil, err
	}

	var res pipeline.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return res.Entry, res.Err
}

func chatLoop(ctx context.Context, st *studio.Studio, id domain.EntryID, in *bufio.Reader, out io.Writer) error {
	svc := st.Chat()
	if _, err := svc.Toggle(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(out, styles.Muted.Render("Ask about your dream. An empty line or \"exit\" ends the chat."))

	for {
		fmt.Fprint(out, styles.Label.Render("you> "))
		line, err := in.ReadString('\n')
		text := strings.TrimSpace(line)
		if text == "" || text == "exit" || text == "quit" {
			return nil
		}

		state, sendErr := svc.Send(ctx, id, text)
		if sendErr != nil {
			return sendErr
		}
		if n := len(state.Messages); n > 0 {
			fmt.Fprintln(out, renderReply(state.Messages[n-1]))
		}

		if err != nil {
			// EOF after a last unterminated line
			return nil
		}
	}
}

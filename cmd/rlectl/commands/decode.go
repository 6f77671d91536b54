package commands

import (
	"encoding/hex"
	"fmt"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/hnrck/librle/internal/rle"
)

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex-burst>",
		Short: "Decode the PPDU headers of a hex-encoded burst offline",
		Long: "decode splits a hex-encoded burst (as captured on the wire) into " +
			"PPDUs and prints each header. Whitespace in the input is ignored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleaned := strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return -1
				}
				return r
			}, args[0])

			burst, err := hex.DecodeString(cleaned)
			if err != nil {
				return fmt.Errorf("decode hex input: %w", err)
			}

			out, err := formatBurst(burst)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

// formatBurst walks a burst and renders one line per PPDU header.
func formatBurst(burst []byte) (string, error) {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tKIND\tFRAG\tBODY\tTOTAL\tLABEL\tSUPP\tCRC")

	rest := burst
	for i := 0; len(rest) > 0; i++ {
		ppdu, next, err := rle.NextPPDU(rest)
		if err != nil {
			return "", fmt.Errorf("PPDU #%d: %w", i, err)
		}
		rest = next

		h, _, err := rle.DecodePPDU(ppdu)
		if err != nil {
			return "", fmt.Errorf("PPDU #%d: %w", i, err)
		}

		switch h.Kind {
		case rle.KindComplete:
			fmt.Fprintf(w, "%d\t%s\t-\t%d\t-\t%d\t%t\t-\n",
				i, h.Kind, h.BodyLen, h.LabelType, h.PtypeSuppressed)
		case rle.KindStart:
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%t\t%t\n",
				i, h.Kind, h.FragID, h.BodyLen, h.TotalALPDU,
				h.LabelType, h.PtypeSuppressed, h.UseCRC)
		default:
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t-\t-\t-\t-\n",
				i, h.Kind, h.FragID, h.BodyLen)
		}
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("render burst table: %w", err)
	}
	return sb.String(), nil
}

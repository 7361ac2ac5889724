/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: tokens.go
Description: Token dump command for the Akaylee Parser. Shows how the lexer of the
grammar splits a document, which is the first thing to check when a parse fails.
*/

package commands

import (
	"fmt"
	"strconv"

	"github.com/kleascm/akaylee-parser/pkg/lexer"
	"github.com/kleascm/akaylee-parser/pkg/source"
	"github.com/spf13/cobra"
)

// RunTokens prints the tokens of one document
func RunTokens(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := loadStore(cfg.Grammar, logger.GetLogger())
	if err != nil {
		return err
	}
	lx, err := lexer.ForSnapshot(store.Latest())
	if err != nil {
		return err
	}

	selector, _ := cmd.Flags().GetString("html-selector")
	reader := source.NewReader(selector)
	reader.Fs = appFs
	path := source.Stdin
	if len(args) == 1 {
		path = args[0]
	}
	in, err := reader.Read(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	stream := lx.Tokenize(in.Data)
	for {
		tok, err := stream.Next()
		if err != nil {
			failColor.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			return err
		}
		if tok.IsEOF() {
			dimColor.Fprintf(out, "%4d:%-3d %s\n", tok.Line, tok.Col, lexer.EOFName)
			return nil
		}
		fmt.Fprintf(out, "%4d:%-3d %-12s %s\n", tok.Line, tok.Col, tok.Terminal, strconv.Quote(string(tok.Text)))
	}
}

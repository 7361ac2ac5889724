/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: grammar.go
Description: Grammar inspection commands for the Akaylee Parser.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-parser/pkg/lexer"
	"github.com/spf13/cobra"
)

// RunGrammarCheck validates a grammar file and prints its canonical form
func RunGrammarCheck(cmd *cobra.Command, args []string) error {
	_, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := loadStore(args[0], logger.GetLogger())
	if err != nil {
		return err
	}
	snap := store.Latest()
	if _, err := lexer.ForSnapshot(snap); err != nil {
		return fmt.Errorf("invalid terminals: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, snap.String())
	okColor.Fprintf(cmd.ErrOrStderr(), "%s: ok, %d terminal(s), %d rule(s), digest %s\n",
		args[0], len(snap.Terminals()), len(snap.Rules()), snap.Digest())
	return nil
}

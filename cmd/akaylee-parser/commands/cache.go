/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: cache.go
Description: Rule cache commands for the Akaylee Parser. Lists or clears the proposals
persisted by earlier parse runs.
*/

package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/cache"
	"github.com/spf13/cobra"
)

func cacheStore(cmd *cobra.Command) (*cache.FileStore, error) {
	path, _ := cmd.Flags().GetString("cache-file")
	if path == "" {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Cache.File
	}
	if path == "" {
		return nil, errors.New("no cache file given (use --cache-file or the cache.file config key)")
	}
	return &cache.FileStore{Fs: appFs, Path: path}, nil
}

// RunCacheShow lists the cached proposals, most recently used first
func RunCacheShow(cmd *cobra.Command, args []string) error {
	fs, err := cacheStore(cmd)
	if err != nil {
		return err
	}
	entries, err := fs.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printTitle(fmt.Sprintf("Rule cache %s (%d entries)", fs.Path, len(entries)))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		p, err := e.Proposal.Proposal()
		if err != nil {
			warnColor.Fprintf(out, "%.12s  undecodable entry: %v\n", e.Key, err)
			continue
		}
		fmt.Fprintf(out, "%.12s  %-40s  confidence %.2f  %s\n",
			e.Key, p.Rule.String(), p.Confidence, e.InsertedAt.Format(time.RFC3339))
		for _, t := range p.Terminals {
			dimColor.Fprintf(out, "              terminal %s = /%s/\n", t.Name, t.Pattern)
		}
	}
	return nil
}

// RunCacheClear empties the cache file
func RunCacheClear(cmd *cobra.Command, args []string) error {
	fs, err := cacheStore(cmd)
	if err != nil {
		return err
	}
	if err := fs.Save(nil); err != nil {
		return err
	}
	okColor.Fprintf(cmd.ErrOrStderr(), "Rule cache %s cleared\n", fs.Path)
	return nil
}

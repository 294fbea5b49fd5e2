// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch implements "quarry fetch": downloading a recipe's
// release archive and url patches into the source cache ahead of
// staging.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	libfetch "github.com/quarry-build/quarry/lib/fetch"
	librecipe "github.com/quarry-build/quarry/lib/recipe"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

// fetchParams holds the parameters for the fetch command.
type fetchParams struct {
	Config  string `flag:"config"    desc:"config file (default: $QUARRY_CONFIG, then ~/.config/quarry/config.yaml)"`
	Version string `flag:"version,V" desc:"fetch this release instead of the latest"`
	Jobs    int    `flag:"jobs,j"    desc:"parallel downloads (default: fetch.jobs from the configuration)"`
}

// Command returns the "fetch" command.
func Command() *cli.Command {
	var params fetchParams

	return &cli.Command{
		Name:    "fetch",
		Summary: "Download a recipe's sources into the cache",
		Description: `Download the release archive and url patches a recipe declares,
verify their checksums, and store them in the source cache.

A later "quarry stage" of the same release then works from the cache
without touching the network. Resources already in the cache are
reported and skipped. Local file patches need no fetching, and release
signatures are checked at stage time rather than cached, so neither
appears here.

Nothing is unpacked and nothing is recorded in the install database;
this command only fills the cache.`,
		Usage: "quarry fetch <recipe> [flags]",
		Examples: []cli.Example{
			{
				Description: "Prefetch the latest release of a recipe",
				Command:     "quarry fetch recipes/mercury.jsonc",
			},
			{
				Description: "Prefetch an older release with more parallelism",
				Command:     "quarry fetch --version 1.0.0 --jobs 8 recipes/mercury.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("fetch", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one recipe file, got %d arguments", len(args)).
					WithHint("Usage: quarry fetch <recipe> [flags]")
			}

			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			parsed, err := librecipe.ReadFile(args[0])
			if err != nil {
				return err
			}
			if parsed.Name == "" {
				parsed.Name = librecipe.NameFromPath(args[0])
			}

			release, err := selectRelease(parsed, params.Version)
			if err != nil {
				return err
			}
			resources, err := releaseResources(parsed, release)
			if err != nil {
				return err
			}

			jobs := params.Jobs
			if jobs == 0 {
				jobs = cfg.Fetch.Jobs
			}

			store, err := cli.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			fetcher, err := cli.NewFetcher(cfg, logger)
			if err != nil {
				return err
			}

			logger.Debug("fetching release",
				"package", parsed.Name,
				"version", release.Version,
				"resources", len(resources),
				"jobs", jobs,
			)
			return fetchResources(ctx, os.Stdout, store, fetcher, resources, jobs, logger)
		},
	}
}

// selectRelease resolves the requested version, or the latest when
// none is requested.
func selectRelease(r *librecipe.Recipe, version string) (*librecipe.Version, error) {
	if version == "" {
		release := r.Latest()
		if release == nil {
			return nil, cli.Validation("recipe %q declares no versions", r.Name)
		}
		return release, nil
	}
	release, ok := r.FindVersion(version)
	if !ok {
		return nil, cli.NotFound("recipe %q has no version %q", r.Name, version).
			WithHint("Available: " + strings.Join(r.SortedVersions(), ", "))
	}
	return release, nil
}

// releaseResources lists everything cacheable a release needs: the
// source archive and every url patch that applies to it, with the
// checksums the recipe declares.
func releaseResources(r *librecipe.Recipe, release *librecipe.Version) ([]libfetch.Resource, error) {
	sourceURL, err := r.SourceURL(release)
	if err != nil {
		return nil, fmt.Errorf("expanding source url for %s: %w", release.Version, err)
	}
	resources := []libfetch.Resource{{URL: sourceURL, SHA256: release.SHA256}}

	patches, err := r.PatchesFor(release.Version)
	if err != nil {
		return nil, fmt.Errorf("selecting patches for %s: %w", release.Version, err)
	}
	for _, entry := range patches {
		if entry.URL == "" {
			continue
		}
		resources = append(resources, libfetch.Resource{URL: entry.URL, SHA256: entry.SHA256})
	}
	return resources, nil
}

// fetchResources downloads every resource not already in the cache,
// with one report line per resource. Checksums are verified before
// anything is stored.
func fetchResources(ctx context.Context, w io.Writer, store *sourcecache.Store, fetcher *libfetch.Client, resources []libfetch.Resource, jobs int, logger *slog.Logger) error {
	var misses []libfetch.Resource
	for _, resource := range resources {
		if resource.SHA256 != "" {
			hash, found, err := store.FindBySHA256(resource.SHA256)
			if err != nil {
				return err
			}
			if found {
				fmt.Fprintf(w, "cached  %s %s\n", sourcecache.FormatRef(hash), resource.URL)
				continue
			}
		}
		misses = append(misses, resource)
	}
	if len(misses) == 0 {
		logger.Debug("everything already cached", "resources", len(resources))
		return nil
	}

	blobs, err := fetcher.FetchAll(ctx, misses, jobs)
	if err != nil {
		return err
	}
	for i, data := range blobs {
		hash, err := store.Put(data, sourcecache.Meta{
			URL:    misses[i].URL,
			SHA256: strings.ToLower(misses[i].SHA256),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "fetched %s %s (%s)\n",
			sourcecache.FormatRef(hash), misses[i].URL, humanize.IBytes(uint64(len(data))))
	}

	logger.Info("fetch complete",
		"downloaded", len(misses),
		"cached", len(resources)-len(misses),
	)
	return nil
}

// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestFlagsFromParams_BindsAndParses(t *testing.T) {
	type applyParams struct {
		Directory string        `flag:"directory,d" desc:"target directory" default:"."`
		Strip     int           `flag:"strip,p"     desc:"strip level"      default:"1"`
		Reverse   bool          `flag:"reverse,R"   desc:"un-apply"`
		DryRun    bool          `flag:"dry-run"     desc:"verify only"`
		Timeout   time.Duration `flag:"timeout"     desc:"per-download timeout" default:"5m"`
		Exclude   []string      `flag:"exclude"     desc:"paths to skip"`
	}

	var params applyParams
	flagSet := FlagsFromParams("apply", &params)

	err := flagSet.Parse([]string{
		"--directory", "/src/mercury",
		"-p", "2",
		"--reverse",
		"--exclude", "docs,examples",
		"fix.patch",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if params.Directory != "/src/mercury" {
		t.Errorf("Directory = %q, want /src/mercury", params.Directory)
	}
	if params.Strip != 2 {
		t.Errorf("Strip = %d, want 2", params.Strip)
	}
	if !params.Reverse {
		t.Error("Reverse = false, want true")
	}
	if params.DryRun {
		t.Error("DryRun = true, want the false default")
	}
	if params.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want the 5m default", params.Timeout)
	}
	if len(params.Exclude) != 2 || params.Exclude[0] != "docs" || params.Exclude[1] != "examples" {
		t.Errorf("Exclude = %v, want [docs examples]", params.Exclude)
	}
	if got := flagSet.Args(); len(got) != 1 || got[0] != "fix.patch" {
		t.Errorf("Args() = %v, want [fix.patch]", got)
	}
}

func TestFlagsFromParams_DefaultsWithoutParse(t *testing.T) {
	type params struct {
		Jobs    int    `flag:"jobs"    desc:"parallel downloads" default:"4"`
		Version string `flag:"version" desc:"release to fetch"`
	}

	var p params
	flagSet := FlagsFromParams("fetch", &p)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if p.Jobs != 4 {
		t.Errorf("Jobs = %d, want the default 4", p.Jobs)
	}
	if p.Version != "" {
		t.Errorf("Version = %q, want empty", p.Version)
	}
}

func TestBindFlags_EmbeddedStruct(t *testing.T) {
	type common struct {
		Config string `flag:"config" desc:"config file path"`
	}
	type params struct {
		common
		KeepFailed bool `flag:"keep-failed" desc:"keep failed stage trees"`
	}

	var p params
	flagSet := pflag.NewFlagSet("stage", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags failed: %v", err)
	}

	if err := flagSet.Parse([]string{"--config", "/etc/quarry.yaml", "--keep-failed"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Config != "/etc/quarry.yaml" {
		t.Errorf("Config = %q, want /etc/quarry.yaml", p.Config)
	}
	if !p.KeepFailed {
		t.Error("KeepFailed = false, want true")
	}
}

func TestBindFlags_SkipsUntaggedFields(t *testing.T) {
	type params struct {
		Visible  string `flag:"visible" desc:"bound"`
		internal string
		Helper   string
	}

	var p params
	_ = p.internal
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags failed: %v", err)
	}

	count := 0
	flagSet.VisitAll(func(*pflag.Flag) { count++ })
	if count != 1 {
		t.Errorf("bound %d flags, want 1", count)
	}
}

func TestBindFlags_RejectsNonPointer(t *testing.T) {
	type params struct {
		Value string `flag:"value"`
	}
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(params{}, flagSet); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}
}

func TestBindFlags_RejectsUnsupportedType(t *testing.T) {
	type params struct {
		Weights map[string]int `flag:"weights"`
	}
	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	err := BindFlags(&p, flagSet)
	if err == nil {
		t.Fatal("BindFlags accepted a map field")
	}
	if !strings.Contains(err.Error(), "unsupported type") {
		t.Errorf("error = %q, want it to name the unsupported type", err)
	}
}

func TestBindFlags_RejectsMalformedDefault(t *testing.T) {
	type params struct {
		Strip int `flag:"strip" default:"one"`
	}
	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err == nil {
		t.Error("BindFlags accepted a non-numeric int default")
	}
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the .odavl/manifest.yml and .odavl/gates.yml
// documents described in spec §6, following the teacher's YAML-config
// loading idiom (schemaVersion check, CIE_CONFIG_PATH-style env override,
// directory walk-up discovery).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/odavl/internal/atomicfile"
	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

const (
	DirName           = ".odavl"
	ManifestFile       = "manifest.yml"
	GatesFile          = "gates.yml"
	manifestSchemaVersion = 1
	gatesSchemaVersion    = 1
)

// FileTaxonomy maps a file category name to the glob patterns that belong
// to it (spec §6's fileTaxonomy).
type FileTaxonomy map[string][]string

// DetectorsConfig selects which bundled/pluggable detectors run.
type DetectorsConfig struct {
	Enabled     []string `yaml:"enabled"`
	Disabled    []string `yaml:"disabled"`
	MinSeverity string   `yaml:"minSeverity"`
}

// RecipesConfig governs how DECIDE selects among ranked recipes.
type RecipesConfig struct {
	SelectionStrategy string  `yaml:"selectionStrategy"`
	TrustThreshold    float64 `yaml:"trustThreshold"`
}

// Project describes the indexed repository.
type Project struct {
	Name        string   `yaml:"name"`
	Languages   []string `yaml:"languages"`
	RiskProfile string   `yaml:"riskProfile"`
}

// Manifest is .odavl/manifest.yml.
type Manifest struct {
	SchemaVersion int             `yaml:"schemaVersion"`
	Project       Project         `yaml:"project"`
	FileTaxonomy  FileTaxonomy    `yaml:"fileTaxonomy,omitempty"`
	Detectors     DetectorsConfig `yaml:"detectors"`
	Recipes       RecipesConfig   `yaml:"recipes"`
}

// Thresholds are the governance guardrails gates.yml declares.
type Thresholds struct {
	MaxRiskPerAction      float64 `yaml:"maxRiskPerAction"`
	MinSuccessRate        float64 `yaml:"minSuccessRate"`
	MaxConsecutiveFailures int    `yaml:"maxConsecutiveFailures"`
}

// Enforcement toggles how strictly the gate is applied.
type Enforcement struct {
	BlockIfBudgetExceeded bool `yaml:"blockIfBudgetExceeded"`
	RollbackOnFailure     bool `yaml:"rollbackOnFailure"`
	RequireAttestation    bool `yaml:"requireAttestation"`
}

// Gates is .odavl/gates.yml.
type Gates struct {
	SchemaVersion         int              `yaml:"schemaVersion"`
	RiskBudget            model.RiskBudget `yaml:"riskBudget"`
	ForbiddenPathPatterns []string         `yaml:"forbiddenPathPatterns"`
	MaxFilesPerRun        int              `yaml:"maxFilesPerRun"`
	MaxLinesOfCodeChange  int              `yaml:"maxLinesOfCodeChange"`
	Thresholds            Thresholds       `yaml:"thresholds"`
	Enforcement           Enforcement      `yaml:"enforcement"`
}

// DefaultManifest returns sensible defaults for a freshly initialized repo.
func DefaultManifest(name string) *Manifest {
	return &Manifest{
		SchemaVersion: manifestSchemaVersion,
		Project:       Project{Name: name, Languages: []string{"go"}, RiskProfile: "conservative"},
		FileTaxonomy: FileTaxonomy{
			"source": {"**/*.go"},
			"tests":  {"**/*_test.go"},
		},
		Detectors: DetectorsConfig{
			Enabled:     []string{"gofmt", "govet", "gosyntax", "longline", "todoscan"},
			MinSeverity: "info",
		},
		Recipes: RecipesConfig{SelectionStrategy: "highest-trust", TrustThreshold: 0.5},
	}
}

// DefaultGates returns a conservative starter risk budget.
func DefaultGates() *Gates {
	budget := model.RiskBudget{
		MaxFilesPerRun:       10,
		MaxLinesOfCodeChange: 40,
		MaxTypeErrorsAfter:   0,
		MaxWarningsAfter:     0,
		ForbiddenPathPatterns: []string{".odavl/**", "vendor/**", ".git/**"},
		RiskScoreBudget:      1.0,
		MaxRiskPerAction:     0.5,
	}
	return &Gates{
		SchemaVersion:         gatesSchemaVersion,
		RiskBudget:            budget,
		ForbiddenPathPatterns: budget.ForbiddenPathPatterns,
		MaxFilesPerRun:        budget.MaxFilesPerRun,
		MaxLinesOfCodeChange:  budget.MaxLinesOfCodeChange,
		Thresholds: Thresholds{
			MaxRiskPerAction:       0.5,
			MinSuccessRate:         0.8,
			MaxConsecutiveFailures: 3,
		},
		Enforcement: Enforcement{BlockIfBudgetExceeded: true, RollbackOnFailure: true, RequireAttestation: true},
	}
}

// FindRoot walks up from dir looking for a .odavl directory, returning its
// parent (the workspace root). ODAVL_CONFIG_PATH overrides discovery.
func FindRoot(dir string) (string, error) {
	if envDir := os.Getenv("ODAVL_CONFIG_PATH"); envDir != "" {
		return envDir, nil
	}

	cur := dir
	for {
		candidate := filepath.Join(cur, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", errors.NewConfigError(
		"No .odavl directory found",
		"neither the current directory nor any parent contains a .odavl directory",
		"run 'odavl init' to create one",
		nil,
	)
}

// LoadManifest loads and validates manifest.yml under root/.odavl.
func LoadManifest(root string) (*Manifest, error) {
	path := filepath.Join(root, DirName, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("Cannot read manifest", err.Error(), "run 'odavl init' to create .odavl/manifest.yml", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewConfigError("Invalid manifest format", err.Error(), fmt.Sprintf("fix the YAML syntax in %s", path), err)
	}
	if m.SchemaVersion != manifestSchemaVersion {
		return nil, errors.NewConfigError(
			"Unsupported manifest schema version",
			fmt.Sprintf("found %d, expected %d", m.SchemaVersion, manifestSchemaVersion),
			"run 'odavl init --force' to regenerate the manifest",
			nil,
		)
	}
	return &m, nil
}

// LoadGates loads and validates gates.yml under root/.odavl.
func LoadGates(root string) (*Gates, error) {
	path := filepath.Join(root, DirName, GatesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("Cannot read gates", err.Error(), "run 'odavl init' to create .odavl/gates.yml", err)
	}
	var g Gates
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, errors.NewConfigError("Invalid gates format", err.Error(), fmt.Sprintf("fix the YAML syntax in %s", path), err)
	}
	if g.SchemaVersion != gatesSchemaVersion {
		return nil, errors.NewConfigError(
			"Unsupported gates schema version",
			fmt.Sprintf("found %d, expected %d", g.SchemaVersion, gatesSchemaVersion),
			"run 'odavl init --force' to regenerate gates.yml",
			nil,
		)
	}
	return &g, nil
}

// SaveManifest writes manifest.yml under root/.odavl.
func SaveManifest(root string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.NewInternalError("Cannot encode manifest", err.Error(), "this is a bug, please report it", err)
	}
	return atomicfile.Write(filepath.Join(root, DirName, ManifestFile), data, 0644)
}

// SaveGates writes gates.yml under root/.odavl.
func SaveGates(root string, g *Gates) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return errors.NewInternalError("Cannot encode gates", err.Error(), "this is a bug, please report it", err)
	}
	return atomicfile.Write(filepath.Join(root, DirName, GatesFile), data, 0644)
}

// Paths bundles the directory layout of spec §6.
type Paths struct {
	Root          string
	OdavlDir      string
	CacheDir      string
	BaselinesDir  string
	AttestationsDir string
	PolicyLedgerDir string
	UndoDir       string
	TrustDir      string
	HistoryFile   string
	RecipesTrustFile string
}

// ResolvePaths derives the full on-disk layout rooted at root/.odavl.
func ResolvePaths(root string) Paths {
	odavl := filepath.Join(root, DirName)
	return Paths{
		Root:             root,
		OdavlDir:         odavl,
		CacheDir:         filepath.Join(odavl, "cache"),
		BaselinesDir:     filepath.Join(odavl, "baselines"),
		AttestationsDir:  filepath.Join(odavl, "attestations"),
		PolicyLedgerDir:  filepath.Join(odavl, "policy-ledger"),
		UndoDir:          filepath.Join(odavl, "undo"),
		TrustDir:         filepath.Join(odavl, "trust"),
		HistoryFile:      filepath.Join(odavl, "history.json"),
		RecipesTrustFile: filepath.Join(odavl, "recipes-trust.json"),
	}
}

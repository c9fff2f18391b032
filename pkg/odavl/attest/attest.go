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

// Package attest implements C10, the attestation chain: HMAC-SHA256 signed
// records, chained per runType, covering every run, governance change, and
// recovery event.
package attest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/odavl/internal/atomicfile"
	ierrors "github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

var zeroHash = fmt.Sprintf("%064d", 0)

// Chain manages the on-disk attestation store rooted at <odavlDir>/attestations
// plus the trust anchor at <odavlDir>/trust/anchor.json.
type Chain struct {
	dir        string
	anchorPath string

	mu     sync.Mutex
	anchor *model.TrustAnchor
	seq    uint64
}

func NewChain(attestationsDir, anchorPath string) *Chain {
	return &Chain{dir: attestationsDir, anchorPath: anchorPath}
}

// Anchor lazily creates the trust anchor on first use, persisting its key
// with restricted filesystem permissions (spec §4.10 key lifecycle).
func (c *Chain) Anchor() (*model.TrustAnchor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchorLocked()
}

func (c *Chain) anchorLocked() (*model.TrustAnchor, error) {
	if c.anchor != nil {
		return c.anchor, nil
	}

	var a model.TrustAnchor
	if err := atomicfile.ReadJSON(c.anchorPath, &a); err == nil {
		c.anchor = &a
		return c.anchor, nil
	} else if !os.IsNotExist(err) {
		return nil, ierrors.NewInternalError("Trust anchor file corrupt", err.Error(), "restore it from backup or rotate the key", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, ierrors.NewInternalError("Cannot generate trust anchor key", err.Error(), "check the system entropy source", err)
	}
	a = model.TrustAnchor{ID: uuid.NewString(), Key: hex.EncodeToString(key), CreatedAt: time.Now()}
	if err := atomicfile.WriteJSON(c.anchorPath, a, 0600); err != nil {
		return nil, ierrors.NewPermissionError("Cannot persist trust anchor", err.Error(), "check filesystem permissions on the trust directory", err)
	}
	c.anchor = &a
	return c.anchor, nil
}

// RotateKey replaces the trust anchor's HMAC key with a freshly generated
// one. Existing attestations are not re-signed: records signed under the
// previous key no longer verify against the new anchor.
func (c *Chain) RotateKey() (*model.TrustAnchor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, ierrors.NewInternalError("Cannot generate trust anchor key", err.Error(), "check the system entropy source", err)
	}
	a := model.TrustAnchor{ID: uuid.NewString(), Key: hex.EncodeToString(key), CreatedAt: time.Now()}
	if err := atomicfile.WriteJSON(c.anchorPath, a, 0600); err != nil {
		return nil, ierrors.NewPermissionError("Cannot persist trust anchor", err.Error(), "check filesystem permissions on the trust directory", err)
	}
	c.anchor = &a
	return c.anchor, nil
}

func (c *Chain) chainDir(runType model.RunType) string {
	return filepath.Join(c.dir, string(runType))
}

func (c *Chain) recordPath(runType model.RunType, runID string) string {
	return filepath.Join(c.chainDir(runType), "run-"+runID+".json")
}

// latestRecordLocked returns the most recently appended record of runType,
// determined by the monotonic sequence prefix of each runID.
func (c *Chain) latestRecordLocked(runType model.RunType) (*model.Attestation, error) {
	entries, err := os.ReadDir(c.chainDir(runType))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	latest := names[len(names)-1]
	var seq uint64
	if _, err := fmt.Sscanf(latest, "run-%d-", &seq); err == nil && seq > c.seq {
		c.seq = seq
	}

	var rec model.Attestation
	if err := atomicfile.ReadJSON(filepath.Join(c.chainDir(runType), latest), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// canonicalHash computes SHA-256 of the canonical (field-sorted) JSON
// encoding of v.
func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Append constructs, signs, and persists a new attestation for runType
// covering payload, chaining it to the previous record of the same type.
func (c *Chain) Append(runType model.RunType, payload any) (*model.Attestation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	anchor, err := c.anchorLocked()
	if err != nil {
		return nil, err
	}

	prev, err := c.latestRecordLocked(runType)
	if err != nil {
		return nil, ierrors.NewInternalError("Cannot read attestation chain", err.Error(), "run 'odavl verify' to check chain integrity", err)
	}
	prevHash := zeroHash
	if prev != nil {
		h, err := canonicalHash(prev)
		if err != nil {
			return nil, err
		}
		prevHash = h
	}

	payloadHash, err := canonicalHash(payload)
	if err != nil {
		return nil, ierrors.NewInternalError("Cannot hash attestation payload", err.Error(), "this is a bug, please report it", err)
	}

	c.seq++
	runID := fmt.Sprintf("%010d-%s", c.seq, uuid.NewString())
	rec := model.Attestation{
		RunID:               runID,
		RunType:             runType,
		Timestamp:           time.Now(),
		PrevAttestationHash: prevHash,
		PayloadHash:         payloadHash,
	}
	rec.HMAC = sign(anchor.Key, rec)

	if err := atomicfile.WriteJSON(c.recordPath(runType, runID), rec, 0644); err != nil {
		return nil, ierrors.NewPermissionError("Cannot write attestation record", err.Error(), "check filesystem permissions", err)
	}
	return &rec, nil
}

func sign(hexKey string, rec model.Attestation) string {
	key, _ := hex.DecodeString(hexKey)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(rec.RunID))
	mac.Write([]byte(rec.RunType))
	mac.Write([]byte(rec.Timestamp.UTC().Format(time.RFC3339Nano)))
	mac.Write([]byte(rec.PayloadHash))
	mac.Write([]byte(rec.PrevAttestationHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes rec's HMAC and reports whether it matches.
func (c *Chain) Verify(rec model.Attestation) (bool, error) {
	anchor, err := c.Anchor()
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(sign(anchor.Key, rec)), []byte(rec.HMAC)), nil
}

// IntegrityReport is the result of scanning every attestation on disk.
type IntegrityReport struct {
	Total    int
	Verified int
}

// Ratio returns the verified/total integrity ratio; 1.0 means fully intact.
func (r IntegrityReport) Ratio() float64 {
	if r.Total == 0 {
		return 1.0
	}
	return float64(r.Verified) / float64(r.Total)
}

// VerifyAll scans every record of every runType, checking both the HMAC and
// the prevAttestationHash chain pointer, per spec §4.10 and P8.
func (c *Chain) VerifyAll() (IntegrityReport, error) {
	var report IntegrityReport

	runTypes, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, err
	}

	for _, rt := range runTypes {
		if !rt.IsDir() {
			continue
		}
		runType := model.RunType(rt.Name())
		entries, err := os.ReadDir(c.chainDir(runType))
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		expectedPrev := zeroHash
		for _, name := range names {
			var rec model.Attestation
			if err := atomicfile.ReadJSON(filepath.Join(c.chainDir(runType), name), &rec); err != nil {
				report.Total++
				continue
			}
			report.Total++

			hmacOK, _ := c.Verify(rec)
			chainOK := rec.PrevAttestationHash == expectedPrev
			if hmacOK && chainOK {
				report.Verified++
			}

			h, err := canonicalHash(rec)
			if err == nil {
				expectedPrev = h
			}
		}
	}
	return report, nil
}

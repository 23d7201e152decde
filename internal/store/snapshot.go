package store

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// dmp1Magic tags an encrypted snapshot blob, grounded on the original
// implementation's memory dump format.
var dmp1Magic = []byte("DMP1")

const minEncryptionKeyLength = 16

func deriveKey(passphrase string) ([]byte, error) {
	if len(passphrase) < minEncryptionKeyLength {
		return nil, fmt.Errorf("store: encryption key must be at least %d characters", minEncryptionKeyLength)
	}
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:], nil
}

// encryptBlob seals plaintext with AES-256-GCM under a key derived from
// passphrase, prefixed with the DMP1 magic so restore can recognize the
// format and so a version bump can add a DMP2 variant later.
func encryptBlob(plaintext []byte, passphrase string) ([]byte, error) {
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return append(append([]byte{}, dmp1Magic...), ciphertext...), nil
}

func decryptBlob(blob []byte, passphrase string) ([]byte, error) {
	if !bytes.HasPrefix(blob, dmp1Magic) {
		return nil, fmt.Errorf("store: not a DMP1 snapshot")
	}
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	data := blob[len(dmp1Magic):]
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("store: snapshot ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// snapshotPayload is the gob-encoded body of a DMP1 blob.
type snapshotPayload struct {
	Version     int
	Collections map[string]map[string]Doc
}

func init() {
	// Document fields are typed as interface{}; gob requires every concrete
	// type that flows through an interface value to be registered.
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(true)
	gob.Register([]byte(nil))
	gob.Register([]interface{}(nil))
	gob.Register(map[string]interface{}(nil))
	gob.Register(time.Time{})
}

// DumpToFile encrypts and writes the store's entire contents to a timestamped
// file derived from pathHint, returning the path actually written.
// pathHint may name a file ("dump.bin" -> "dump-20260731T120000Z.bin") or an
// existing directory, in which case the default stem "memory_dump" is used.
func DumpToFile(m *MemoryStore, pathHint, encryptionKey string) (string, error) {
	dir, stem := dumpStemFromHint(pathHint)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	payload := snapshotPayload{Version: 1, Collections: m.snapshot()}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return "", err
	}
	blob, err := encryptBlob(buf.Bytes(), encryptionKey)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.bin", stem, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, blob, 0o640); err != nil {
		return "", err
	}
	return path, nil
}

// RestoreFromFile decrypts path and replaces m's contents, returning the
// snapshot's format version.
func RestoreFromFile(m *MemoryStore, path, encryptionKey string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	plain, err := decryptBlob(raw, encryptionKey)
	if err != nil {
		return 0, err
	}
	var payload snapshotPayload
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&payload); err != nil {
		return 0, err
	}
	m.restore(payload.Collections)
	return payload.Version, nil
}

func dumpStemFromHint(hint string) (dir, stem string) {
	if hint == "" {
		return "./data", "memory_dump"
	}
	if info, err := os.Stat(hint); err == nil && info.IsDir() {
		return hint, "memory_dump"
	}
	dir = filepath.Dir(hint)
	base := filepath.Base(hint)
	stem = strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "memory_dump"
	}
	return dir, stem
}

// FindLatestDumpPath returns the most recently modified dump file matching
// pathHint's stem within its directory, or "" if none exists.
func FindLatestDumpPath(pathHint string) (string, error) {
	dir, stem := dumpStemFromHint(pathHint)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	prefix := stem + "-"
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })
	return candidates[0].path, nil
}

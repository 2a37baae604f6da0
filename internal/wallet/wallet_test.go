package wallet

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKey_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")

	first, err := loadOrCreateKey(keyPath)
	require.NoError(t, err)
	require.NotNil(t, first)

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	decoded, err := hex.DecodeString(string(raw))
	require.NoError(t, err)
	require.Len(t, decoded, btcec.PrivKeyBytesLen)

	second, err := loadOrCreateKey(keyPath)
	require.NoError(t, err)
	require.Equal(t, first.Serialize(), second.Serialize())
}

func TestLoadOrCreateKey_RejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("not-hex"), 0600))

	_, err := loadOrCreateKey(keyPath)
	require.Error(t, err)
}

func TestLoadOrCreateKey_RejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(hex.EncodeToString([]byte("short"))), 0600))

	_, err := loadOrCreateKey(keyPath)
	require.Error(t, err)
}

func TestWallet_PublicKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")

	key, err := loadOrCreateKey(keyPath)
	require.NoError(t, err)
	w := &Wallet{key: key}

	pub, err := w.PublicKey()
	require.NoError(t, err)
	require.Equal(t, key.PubKey(), pub)
	require.Equal(t, key, w.CoordinatorKey())
}

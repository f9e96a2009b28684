package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vcrypto"
)

// keyStoreV1 is the on-disk keystore format, grounded on the teacher's
// KeyStoreV1 (node/keymgr.go): a versioned JSON envelope wrapping the
// private key material under a passphrase-derived KEK with AES-256 key
// wrap rather than storing it in the clear.
type keyStoreV1 struct {
	Version      string `json:"version"`
	PmidHex      string `json:"pmid_hex"`
	PublicKeyHex string `json:"public_key_hex"`
	PKSigHex     string `json:"pk_signature_hex"`
	WrapAlg      string `json:"wrap_alg"`
	WrappedSKHex string `json:"wrapped_sk_hex"`
}

func deriveKEK(passphrase string) [32]byte {
	return vcrypto.StdProvider{}.ChecksumSeed([]byte(passphrase))
}

func keygenCmd() *cobra.Command {
	var out string
	var passphrase string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a vault identity (PMID, keypair) and write a keystore file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("missing required flag: --out")
			}
			if passphrase == "" {
				return fmt.Errorf("missing required flag: --passphrase")
			}

			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			// Self-signed identity triple (§4.1): pk_signature binds the
			// public key to itself so node_id == Hash(pub || pk_signature)
			// authenticates the pairing, not a chain of trust.
			pkSig := vcrypto.Sign(priv, pub)
			digest := vcrypto.StdProvider{}.Hash512(append(append([]byte{}, pub...), pkSig...))
			var pmid types.Pmid
			copy(pmid[:], digest[:])

			kek := deriveKEK(passphrase)
			wrapped, err := vcrypto.WrapPrivateKey(kek, priv)
			if err != nil {
				return fmt.Errorf("wrap private key: %w", err)
			}

			ks := keyStoreV1{
				Version:      "VAULTKSv1",
				PmidHex:      pmid.String(),
				PublicKeyHex: hex.EncodeToString(pub),
				PKSigHex:     hex.EncodeToString(pkSig),
				WrapAlg:      vcrypto.WrapAlgAESKW256,
				WrappedSKHex: hex.EncodeToString(wrapped),
			}
			enc, err := json.MarshalIndent(ks, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal keystore: %w", err)
			}
			if err := os.WriteFile(out, enc, 0o600); err != nil {
				return fmt.Errorf("write keystore: %w", err)
			}
			fmt.Printf("pmid: %s\n", pmid.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the keystore JSON file")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the stored private key")
	return cmd
}

// loadKeystore reads and unwraps a keystore written by keygenCmd.
func loadKeystore(path, passphrase string) (pub, priv, pkSig []byte, pmid types.Pmid, err error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("read keystore: %w", err)
	}
	var ks keyStoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("parse keystore: %w", err)
	}
	pub, err = hex.DecodeString(ks.PublicKeyHex)
	if err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("public_key_hex: %w", err)
	}
	pkSig, err = hex.DecodeString(ks.PKSigHex)
	if err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("pk_signature_hex: %w", err)
	}
	wrapped, err := hex.DecodeString(ks.WrappedSKHex)
	if err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("wrapped_sk_hex: %w", err)
	}
	kek := deriveKEK(passphrase)
	privKey, err := vcrypto.UnwrapPrivateKey(kek, wrapped)
	if err != nil {
		return nil, nil, nil, pmid, fmt.Errorf("unwrap private key (wrong passphrase?): %w", err)
	}
	priv = privKey
	pmidBytes, err := hex.DecodeString(ks.PmidHex)
	if err != nil || len(pmidBytes) != types.IDLen {
		return nil, nil, nil, pmid, fmt.Errorf("pmid_hex: invalid")
	}
	copy(pmid[:], pmidBytes)
	return pub, priv, pkSig, pmid, nil
}

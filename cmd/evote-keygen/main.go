// Command evote-keygen manages the authority key pair and encrypts or
// decrypts single ballots with it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vocdoni/evote-tally/config"
	"github.com/vocdoni/evote-tally/crypto/authority"
	"github.com/vocdoni/evote-tally/internal"
	"github.com/vocdoni/evote-tally/tally"
)

const defaultPublicKeyPath = "authority_public_key.pem"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evote-keygen",
		Short:         "Manage the tally authority key pair",
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newGenerateCmd(), newEncryptCmd(), newDecryptCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	var (
		outDir   string
		bits     int
		password string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new RSA key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPath := filepath.Join(outDir, config.DefaultKeyPath)
			pubPath := filepath.Join(outDir, defaultPublicKeyPath)
			if !force {
				for _, p := range []string{privPath, pubPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists, use --force to overwrite", p)
					}
				}
			}
			priv, err := authority.GenerateKey(bits)
			if err != nil {
				return err
			}
			var pass []byte
			if password != "" {
				pass = []byte(password)
			}
			privPEM, err := authority.MarshalPrivateKeyPEM(priv, pass)
			if err != nil {
				return err
			}
			pubPEM, err := authority.MarshalPublicKeyPEM(&priv.PublicKey)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().IntVarP(&bits, "bits", "b", authority.DefaultKeyBits, "key size in bits")
	cmd.Flags().StringVarP(&password, "password", "p", "", "encrypt the private key as PKCS#8 with this password")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing keys")
	return cmd
}

func newEncryptCmd() *cobra.Command {
	var pubPath string
	cmd := &cobra.Command{
		Use:   "encrypt <candidateId>",
		Short: "Encrypt a candidate id the way the voter client does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid candidate id %q: %w", args[0], err)
			}
			data, err := os.ReadFile(pubPath)
			if err != nil {
				return fmt.Errorf("read public key: %w", err)
			}
			pub, err := authority.ParsePublicKeyPEM(data)
			if err != nil {
				return err
			}
			ct, err := authority.EncryptChoice(pub, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
	cmd.Flags().StringVarP(&pubPath, "pubkey", "k", defaultPublicKeyPath, "authority public key PEM file")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var keyPath, password string
	cmd := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Decrypt one base64 ballot with the authority private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := (&authority.FileKeyLoader{Path: keyPath, Password: password}).LoadPrivateKey()
			if err != nil {
				return err
			}
			outcome := tally.Decrypt(args[0], key)
			if !outcome.IsSelected() {
				return fmt.Errorf("ballot rejected: %w", outcome.Err())
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.CandidateID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", config.DefaultKeyPath, "authority private key PEM file")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password of an encrypted PKCS#8 key")
	return cmd
}

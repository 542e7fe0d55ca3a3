package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alovak/cardflow-3ds/internal/auth"
	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"github.com/alovak/cardflow-3ds/internal/config"
	"github.com/alovak/cardflow-3ds/internal/expiry"
	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/alovak/cardflow-3ds/issuer"
)

type enrollOptions struct {
	bin      string
	sequence string
	name     string
	password string
	cvv      string
	cvk      string
	product  string
	years    int
	out      string
	verbose  bool
}

func enrollCmd() *cobra.Command {
	opts := &enrollOptions{}
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Issue a card and print its issuer directory entry",
		Long: `Issue a Luhn-valid card under a BIN and print the cardholder directory
entry the issuer loads with directoryFile.

Examples:
  cardflow enroll --bin 1234 --name "Joe" --password secret
  cardflow enroll --bin 421234 --product credit --out cardholders.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.bin, "bin", "1234", "BIN prefix (1-9 digits)")
	cmd.Flags().StringVar(&opts.sequence, "sequence", "", "optional numeric sequence before the check digit")
	cmd.Flags().StringVar(&opts.name, "name", "", "cardholder name")
	cmd.Flags().StringVar(&opts.password, "password", "", "cardholder challenge password")
	cmd.Flags().StringVar(&opts.cvv, "cvv", "", "card verification value (derived with --cvk when empty)")
	cmd.Flags().StringVar(&opts.cvk, "cvk", config.Getenv("CARDFLOW_CVK", "dev-cvk-not-for-production"), "key card verification values are derived under")
	cmd.Flags().StringVar(&opts.product, "product", "debit", "card product: credit|debit")
	cmd.Flags().IntVar(&opts.years, "years", 0, "override validity years (if > 0)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the directory file here instead of stdout")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print the full PAN (otherwise masked)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runEnroll(cmd *cobra.Command, opts *enrollOptions) error {
	if err := cardgen.ValidateBIN(opts.bin); err != nil {
		return err
	}
	name := normalizeCardName(opts.name)
	if name == "" {
		return fmt.Errorf("--name must not be blank")
	}

	pan, err := cardgen.GeneratePAN(opts.bin, opts.sequence)
	if err != nil {
		return fmt.Errorf("generating pan: %w", err)
	}
	month, year := expiry.ForIssue(time.Now(), expiry.YearsForProduct(opts.product, opts.years))
	yymm, err := expiry.YYMM(month, year)
	if err != nil {
		return err
	}

	cvv := opts.cvv
	if cvv == "" {
		cvv, err = cardgen.DeriveCVV(pan, yymm, cardgen.DefaultServiceCode, 3, []byte(opts.cvk))
		if err != nil {
			return fmt.Errorf("deriving cvv: %w", err)
		}
	}
	if !cardgen.IsDigits(cvv) || len(cvv) < 3 || len(cvv) > 4 {
		return fmt.Errorf("--cvv must be 3 or 4 digits")
	}

	hash, err := auth.HashPassword(opts.password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	cardholder := models.Cardholder{
		CardNumber:   pan,
		CVV:          cvv,
		ExpiryMonth:  month,
		ExpiryYear:   year,
		Name:         name,
		PasswordHash: hash,
	}

	cardholders := []models.Cardholder{cardholder}
	if opts.out != "" {
		existing, err := readDirectory(opts.out)
		if err != nil {
			return err
		}
		cardholders = append(existing, cardholder)
	}
	raw, err := issuer.MarshalDirectory(cardholders...)
	if err != nil {
		return fmt.Errorf("encoding directory: %w", err)
	}

	printPAN := cardgen.MaskPAN(pan)
	if opts.verbose {
		printPAN = pan + "   (WARNING: printing full PAN)"
	}
	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "PAN: %s\nEXP(card-face): %s\nNAME(card-face): %s\n", printPAN, expiry.CardFace(month, year), name)

	if opts.out == "" {
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	}
	if err := os.WriteFile(opts.out, raw, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", opts.out, err)
	}
	fmt.Fprintf(stderr, "Enrolled into %s (%d cardholders).\n", opts.out, len(cardholders))
	return nil
}

func readDirectory(path string) ([]models.Cardholder, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	dir, err := issuer.LoadDirectoryFile(path)
	if err != nil {
		return nil, err
	}
	return dir.Cardholders(), nil
}

// normalizeCardName collapses whitespace and upper-cases the name the way it
// is imprinted, 26 characters at most.
func normalizeCardName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	up := strings.ToUpper(strings.Join(strings.Fields(trimmed), " "))
	if len(up) > 26 {
		return up[:26]
	}
	return up
}

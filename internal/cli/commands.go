package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qtdlabs/muletrace/internal/audit"
)

func (a *app) registerCmd() *cobra.Command {
	var txn, from, to string
	var amount float64
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a transfer edge in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registration, err := a.engine.RegisterTransfer(cmd.Context(), txn, from, to, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), registration)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	cmd.Flags().StringVar(&from, "from", "", "Sender account")
	cmd.Flags().StringVar(&to, "to", "", "Recipient account")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Transfer amount")
	_ = cmd.MarkFlagRequired("txn")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) detectCmd() *cobra.Command {
	var txn string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score a transaction for fraud and record the verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			detection, err := a.engine.DetectTransaction(cmd.Context(), txn)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), detection)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	_ = cmd.MarkFlagRequired("txn")
	return cmd
}

func (a *app) traceCmd() *cobra.Command {
	var account string
	var hops int
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace downstream flows from an account and persist the path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			trace, err := a.engine.TraceAccount(cmd.Context(), account, hops)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), trace)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Start account")
	cmd.Flags().IntVar(&hops, "hops", 5, "Max hops to search")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func (a *app) autoTraceCmd() *cobra.Command {
	var txn string
	var depth int
	cmd := &cobra.Command{
		Use:   "auto-trace",
		Short: "Trace sub-transfers downstream of a transaction's recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			trace, err := a.engine.TraceTransaction(cmd.Context(), txn, depth)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), trace)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	cmd.Flags().IntVar(&depth, "depth", 5, "Max depth to trace")
	_ = cmd.MarkFlagRequired("txn")
	return cmd
}

func (a *app) freezeCmd() *cobra.Command {
	var txn, reason, currency string
	var amount float64
	cmd := &cobra.Command{
		Use:   "freeze",
		Short: "Freeze the suspected amount associated with a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			freeze, err := a.engine.FreezeTransaction(cmd.Context(), txn, amount, reason, currency)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), freeze)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Suspected amount to freeze")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason to freeze")
	cmd.Flags().StringVar(&currency, "currency", "", "Currency of the frozen amount")
	_ = cmd.MarkFlagRequired("txn")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) recoverCmd() *cobra.Command {
	var txn string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Attempt an advisory-scored recovery of a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recovery, err := a.engine.RecoverTransaction(cmd.Context(), txn)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recovery)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	_ = cmd.MarkFlagRequired("txn")
	return cmd
}

func (a *app) revertCmd() *cobra.Command {
	var txn string
	var amount float64
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Attempt an instant reversal of a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reversal, err := a.engine.InstantRevert(cmd.Context(), txn, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reversal)
		},
	}
	cmd.Flags().StringVar(&txn, "txn", "", "Transaction ID")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount to revert (defaults to the registered amount)")
	_ = cmd.MarkFlagRequired("txn")
	return cmd
}

func (a *app) alertCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Send a scam alert and record it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alert, err := a.notifier.SendAlert(cmd.Context(), message)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alert)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "Alert message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report a case to the authorities' intake channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.notifier.ReportCase(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&caseID, "case-id", "", "Case ID to report")
	_ = cmd.MarkFlagRequired("case-id")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Merge every persisted trace for an account into one path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := a.aggregator.AccountHistory(cmd.Context(), account)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func (a *app) recentCmd() *cobra.Command {
	var kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent audit records of a kind, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.audit.FetchRecent(cmd.Context(), audit.Kind(kind), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(audit.KindFailureNote), "Record kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of records to show")
	return cmd
}

func (a *app) failuresCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show recent internal failure notes, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.audit.FetchRecent(cmd.Context(), audit.KindFailureNote, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of notes to show")
	return cmd
}

func (a *app) encryptCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a file with the locally derived key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.codec.EncryptFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encrypted file: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File to encrypt")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) decryptCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a previously encrypted file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.codec.DecryptFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decrypted to: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File to decrypt")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

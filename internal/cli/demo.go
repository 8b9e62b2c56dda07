package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hedisam/pipeline/chans"

	"github.com/qtdlabs/muletrace/internal/audit"
	"github.com/qtdlabs/muletrace/internal/ingest"
)

// demoCmd runs the end-to-end fraud-case walkthrough: stream a mule chain
// into the ledger, detect, freeze, trace, revert, then inspect the audit
// trail.
func (a *app) demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the end-to-end fraud case walkthrough",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd)
		},
	}
}

func (a *app) runDemo(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	transfers := []ingest.Transfer{
		{TxnID: "T1", FromAccount: "muleA", ToAccount: "muleB", Amount: 5000},
		{TxnID: "T2", FromAccount: "muleB", ToAccount: "muleC", Amount: 4000},
		{TxnID: "T3", FromAccount: "muleC", ToAccount: "muleD", Amount: 3900},
	}

	fmt.Fprintln(out, "--- Streaming mule transfers into the ledger ---")
	in := make(chan ingest.Transfer)
	go func() {
		defer close(in)
		for transfer := range slices.Values(transfers) {
			if !chans.SendOrDone(ctx, in, transfer) {
				return
			}
		}
	}()
	stats := ingest.New(a.logger, a.ledger).Run(ctx, in)
	err := printJSON(out, stats)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Detecting fraud for T1 ---")
	detection, err := a.engine.DetectTransaction(ctx, "T1")
	if err != nil {
		return err
	}
	err = printJSON(out, detection)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Freezing suspected amount from T1 ---")
	freeze, err := a.engine.FreezeTransaction(ctx, "T1", 4000, "pattern matched", "")
	if err != nil {
		return err
	}
	err = printJSON(out, freeze)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Tracing mule flow from muleA ---")
	trace, err := a.engine.TraceAccount(ctx, "muleA", 5)
	if err != nil {
		return err
	}
	err = printJSON(out, trace)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Tracing sub-transfers downstream of T1 ---")
	txnTrace, err := a.engine.TraceTransaction(ctx, "T1", 5)
	if err != nil {
		return err
	}
	err = printJSON(out, txnTrace)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Instant revert for T1 ---")
	reversal, err := a.engine.InstantRevert(ctx, "T1", 4000)
	if err != nil {
		return err
	}
	err = printJSON(out, reversal)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Merged trace history for muleA ---")
	history, err := a.aggregator.AccountHistory(ctx, "muleA")
	if err != nil {
		return err
	}
	err = printJSON(out, history)
	if err != nil {
		return err
	}

	kinds := []audit.Kind{
		audit.KindDetection,
		audit.KindFreeze,
		audit.KindTrace,
		audit.KindRecovery,
		audit.KindReversal,
	}
	for kind := range slices.Values(kinds) {
		fmt.Fprintf(out, "--- Recent %s records ---\n", kind)
		records, err := a.audit.FetchRecent(ctx, kind, 10)
		if err != nil {
			return err
		}
		err = printJSON(out, records)
		if err != nil {
			return err
		}
	}

	return nil
}

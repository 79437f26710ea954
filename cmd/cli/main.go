package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/tradebook/internal/adapter/http/dto"
)

var errUnbalanced = errors.New("ledger is not balanced")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Message != "" {
				return fmt.Errorf("%s: %s (status %d)", apiErr.Error, apiErr.Message, resp.StatusCode)
			}
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func newRootCmd() *cobra.Command {
	client := &apiClient{http: &http.Client{}}
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:           "tradebook-cli",
		Short:         "Tradebook CLI tool",
		Long:          `A command line interface for the Tradebook payment ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client.http.Timeout = timeout
		},
	}

	rootCmd.PersistentFlags().StringVar(&client.baseURL, "url", "http://localhost:8080", "Base URL of the Tradebook API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(summaryCmd(client), paymentsCmd(client), ledgerCmd(client))
	return rootCmd
}

func summaryCmd(client *apiClient) *cobra.Command {
	var counterparty string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show outstanding totals for one counterparty or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if counterparty != "" {
				var s dto.SummaryResponse
				path := "/api/v1/counterparties/" + url.PathEscape(counterparty) + "/summary"
				if err := client.do(cmd.Context(), http.MethodGet, path, nil, &s); err != nil {
					return err
				}
				printSummaries(out, []*dto.SummaryResponse{&s}, nil)
				return nil
			}

			var fleet dto.FleetSummaryResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/summary", nil, &fleet); err != nil {
				return err
			}
			printSummaries(out, fleet.Counterparties, fleet.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&counterparty, "counterparty", "", "Counterparty key, e.g. \"ramesh|9876543210\"")
	return cmd
}

func printSummaries(out io.Writer, rows []*dto.SummaryResponse, total *dto.SummaryResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNTERPARTY\tENTRIES\tORIGINAL\tPAID\tDISCOUNT\tOUTSTANDING")
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			s.CounterpartyKey, s.EntryCount, s.TotalOriginal, s.TotalPaid, s.TotalDiscount, s.TotalOutstanding)
	}
	if total != nil {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			"TOTAL", total.EntryCount, total.TotalOriginal, total.TotalPaid, total.TotalDiscount, total.TotalOutstanding)
	}
	w.Flush()
}

func paymentsCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Payment operations",
	}

	cmd.AddCommand(previewCmd(client), deleteCmd(client))
	return cmd
}

func previewCmd(client *apiClient) *cobra.Command {
	var (
		req     dto.PaymentRequest
		details string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show how a payment would be allocated without recording it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if details != "" {
				req.Details = json.RawMessage(details)
			}

			var preview dto.PreviewResponse
			if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/payments/preview", &req, &preview); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENTRY\tAMOUNT\tDISCOUNT")
			for _, a := range preview.Allocations {
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.EntryID, a.AmountApplied, a.DiscountApplied)
			}
			w.Flush()

			fmt.Fprintf(cmd.OutOrStdout(), "%s payment of %s (discount %s) against %s outstanding, remainder %s\n",
				preview.Type, preview.Amount, preview.Discount, preview.TotalOutstanding, preview.Remainder)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.CounterpartyKey, "counterparty", "", "Counterparty key")
	cmd.Flags().StringVar(&req.Type, "type", "Partial", "Payment type: Full or Partial")
	cmd.Flags().StringVar(&req.Method, "method", "cash", "Payment method: cash, upi, cheque, neft or rtgs")
	cmd.Flags().StringSliceVar(&req.EntryIDs, "entries", nil, "Comma separated entry IDs")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Cash amount; empty settles the selection for Full payments")
	cmd.Flags().StringVar(&req.Discount, "discount", "", "Cash discount")
	cmd.Flags().StringVar(&details, "details", "", "Method details as JSON")
	_ = cmd.MarkFlagRequired("counterparty")
	_ = cmd.MarkFlagRequired("entries")

	return cmd
}

func deleteCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <payment-id>",
		Short: "Delete a payment and restore the balances it settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.do(cmd.Context(), http.MethodDelete, "/api/v1/payments/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "payment %s deleted\n", args[0])
			return nil
		},
	}
}

func ledgerCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored outstanding amounts with the payment history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report dto.ReconciliationResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/ledger/reconciliation", nil, &report); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Balanced {
				fmt.Fprintf(out, "Reconciliation PASSED: %d entries checked\n", report.CheckedEntries)
				return nil
			}

			fmt.Fprintf(out, "Reconciliation FAILED: %d entries checked\n", report.CheckedEntries)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENTRY\tCOUNTERPARTY\tSTORED\tDERIVED\tDIFFERENCE")
			for _, d := range report.Discrepancies {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.EntryID, d.CounterpartyKey, d.Stored, d.Derived, d.Difference)
			}
			w.Flush()
			for _, id := range report.OrphanEntryIDs {
				fmt.Fprintf(out, "orphan allocation to missing entry %s\n", id)
			}

			return errUnbalanced
		},
	})

	return cmd
}

package main

import (
	"context"
	"fmt"
	"strings"

	"wallet-settlement/internal/app"
	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Send instant payments and inspect their status",
	}
	cmd.AddCommand(paymentInitiateCmd())
	cmd.AddCommand(paymentStatusCmd())
	return cmd
}

func paymentInitiateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Submit an instant payment",
		Example: `  settlectl payment initiate --request-id inv-42 \
    --debtor WALLETCO:7f7c... --creditor BANKB:0123456789 --amount 50.00 --currency NAD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := paymentRequest(cmd)
			if err != nil {
				return err
			}
			debtorName, _ := cmd.Flags().GetString("debtor-name")
			creditorName, _ := cmd.Flags().GetString("creditor-name")

			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				result, err := node.Services.Payments.SendPayment(ctx, req, debtorName, creditorName)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().String("request-id", "", "Caller idempotency key")
	cmd.Flags().String("debtor", "", "Debtor as PARTICIPANT:ACCOUNT")
	cmd.Flags().String("creditor", "", "Creditor as PARTICIPANT:ACCOUNT")
	cmd.Flags().String("debtor-name", "", "Debtor name carried on the message")
	cmd.Flags().String("creditor-name", "", "Creditor name carried on the message")
	cmd.Flags().String("amount", "", "Amount in major units, e.g. 50.00")
	cmd.Flags().String("currency", "", "ISO 4217 currency code")
	cmd.Flags().String("end-to-end-id", "", "End-to-end id (defaults to the request id)")
	cmd.Flags().String("reference", "", "Remittance information")
	for _, name := range []string{"request-id", "debtor", "creditor", "amount", "currency"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func paymentRequest(cmd *cobra.Command) (domain.PaymentRequest, error) {
	var req domain.PaymentRequest

	rawDebtor, _ := cmd.Flags().GetString("debtor")
	debtor, err := parseAccountRef(rawDebtor)
	if err != nil {
		return req, fmt.Errorf("invalid --debtor: %w", err)
	}
	rawCreditor, _ := cmd.Flags().GetString("creditor")
	creditor, err := parseAccountRef(rawCreditor)
	if err != nil {
		return req, fmt.Errorf("invalid --creditor: %w", err)
	}
	rawAmount, _ := cmd.Flags().GetString("amount")
	amount, err := service.ParseAmount(rawAmount)
	if err != nil {
		return req, fmt.Errorf("invalid --amount: %w", err)
	}

	req.RequestID, _ = cmd.Flags().GetString("request-id")
	req.Debtor = debtor
	req.Creditor = creditor
	req.Amount = amount
	req.Currency, _ = cmd.Flags().GetString("currency")
	req.EndToEndID, _ = cmd.Flags().GetString("end-to-end-id")
	if ref, _ := cmd.Flags().GetString("reference"); ref != "" {
		req.Reference = &ref
	}
	return req, nil
}

// parseAccountRef splits PARTICIPANT:ACCOUNT. The account part may itself
// contain colons.
func parseAccountRef(raw string) (domain.AccountRef, error) {
	participant, account, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || participant == "" || account == "" {
		return domain.AccountRef{}, fmt.Errorf("expected PARTICIPANT:ACCOUNT, got %q", raw)
	}
	return domain.AccountRef{ParticipantID: participant, AccountID: account}, nil
}

func paymentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [payment-id]",
		Short: "Show the stored status of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payment id: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				rec, err := node.Services.Payments.GetPaymentStatus(ctx, paymentID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

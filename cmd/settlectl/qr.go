package main

import (
	"context"
	"fmt"
	"strings"

	"wallet-settlement/internal/app"
	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func qrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Issue, check and redeem merchant QR codes",
	}
	cmd.AddCommand(qrGenerateCmd())
	cmd.AddCommand(qrValidateCmd())
	cmd.AddCommand(qrRedeemCmd())
	return cmd
}

func qrGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a signed QR code for a merchant",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := generateRequest(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				qr, err := node.Services.QR.Generate(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), qr)
			})
		},
	}

	cmd.Flags().String("merchant", "", "Merchant id")
	cmd.Flags().String("amount", "", "Amount in major units, e.g. 150.00")
	cmd.Flags().String("currency", "", "ISO 4217 currency code")
	cmd.Flags().String("reference", "", "Merchant reference")
	cmd.Flags().Int("expiry", 0, "Expiry in minutes (0 = policy default)")
	cmd.Flags().Bool("offline", false, "Issue a code redeemable offline")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

func generateRequest(cmd *cobra.Command) (ports.GenerateQRRequest, error) {
	var req ports.GenerateQRRequest

	raw, _ := cmd.Flags().GetString("merchant")
	merchantID, err := uuid.Parse(raw)
	if err != nil {
		return req, fmt.Errorf("invalid --merchant: %w", err)
	}
	rawAmount, _ := cmd.Flags().GetString("amount")
	amount, err := service.ParseAmount(rawAmount)
	if err != nil {
		return req, fmt.Errorf("invalid --amount: %w", err)
	}
	currency, _ := cmd.Flags().GetString("currency")

	req = ports.GenerateQRRequest{
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   strings.ToUpper(currency),
		ClientIP:   "settlectl",
	}
	if ref, _ := cmd.Flags().GetString("reference"); ref != "" {
		req.Reference = &ref
	}
	if cmd.Flags().Changed("expiry") {
		expiry, _ := cmd.Flags().GetInt("expiry")
		req.ExpiryMinutes = &expiry
	}
	req.Offline, _ = cmd.Flags().GetBool("offline")
	return req, nil
}

func qrValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [payload]",
		Short: "Check a scanned payload without redeeming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				return printJSON(cmd.OutOrStdout(), node.Services.QR.Validate(ctx, args[0]))
			})
		},
	}
}

func qrRedeemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeem [qr-id]",
		Short: "Redeem a QR code into a payer wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := redeemRequest(cmd, args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, node *app.App) error {
				result, err := node.Services.QR.Redeem(ctx, req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("redemption %s: %s", strings.ToLower(string(result.Outcome)), result.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("payer", "", "Payer id")
	cmd.Flags().String("wallet", "", "Payer wallet id")
	cmd.Flags().String("pin", "", "Payer PIN")
	cmd.Flags().String("device", "", "POS or ATM device id")
	cmd.Flags().String("channel", string(domain.ChannelApp), "Redemption channel (POS, ATM, USSD, APP)")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("wallet")

	return cmd
}

func redeemRequest(cmd *cobra.Command, rawID string) (ports.RedeemRequest, error) {
	var req ports.RedeemRequest

	qrID, err := uuid.Parse(rawID)
	if err != nil {
		return req, fmt.Errorf("invalid qr id: %w", err)
	}
	raw, _ := cmd.Flags().GetString("payer")
	payerID, err := uuid.Parse(raw)
	if err != nil {
		return req, fmt.Errorf("invalid --payer: %w", err)
	}
	raw, _ = cmd.Flags().GetString("wallet")
	walletID, err := uuid.Parse(raw)
	if err != nil {
		return req, fmt.Errorf("invalid --wallet: %w", err)
	}
	rawChannel, _ := cmd.Flags().GetString("channel")
	channel := domain.Channel(strings.ToUpper(strings.TrimSpace(rawChannel)))
	if !channel.Valid() {
		return req, fmt.Errorf("invalid --channel %q", rawChannel)
	}

	req = ports.RedeemRequest{
		QRID:          qrID,
		PayerID:       payerID,
		PayerWalletID: walletID,
		Channel:       channel,
		ClientIP:      "settlectl",
	}
	if pin, _ := cmd.Flags().GetString("pin"); pin != "" {
		req.PIN = &pin
	}
	if device, _ := cmd.Flags().GetString("device"); device != "" {
		req.DeviceID = &device
	}
	return req, nil
}

package workflow

import (
	"context"
	"fmt"

	"essay-review-bot/model"

	"go.uber.org/zap"
)

// SubmitReceipt records a pending payment and forwards the receipt to the
// payment admin with decision buttons.
func (s *Service) SubmitReceipt(ctx context.Context, userID int64, username, kind, ref string) (*model.Payment, error) {
	p := &model.Payment{
		PaymentID:   s.node.Generate().String(),
		UserID:      userID,
		Amount:      s.opts.PaymentAmount,
		Username:    username,
		ReceiptKind: kind,
		ReceiptRef:  ref,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("workflow: create payment: %w", err)
	}
	if _, err := s.msg.SendReceipt(s.opts.PaymentAdminID, p, receiptCaption(p)); err != nil {
		s.log.Error("failed to forward receipt", zap.String("payment_id", p.PaymentID), zap.Error(err))
	}
	s.log.Info("payment submitted", zap.String("payment_id", p.PaymentID), zap.Int64("user_id", userID))
	return p, nil
}

// DecidePayment approves or rejects a pending payment once. adminMsg is the
// receipt message whose caption gets the decision.
func (s *Service) DecidePayment(ctx context.Context, adminID int64, paymentID string, approve bool, adminMsg model.MessageRef) (*model.Payment, error) {
	if !s.IsPaymentAdmin(adminID) {
		return nil, ErrForbidden
	}
	p, err := s.payments.Decide(ctx, paymentID, adminID, approve)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrAlreadyDecided
	}
	log := s.log.With(zap.String("payment_id", p.PaymentID), zap.Int64("user_id", p.UserID), zap.String("status", p.Status))

	if err := s.msg.EditCaption(adminMsg, decisionCaption(p)); err != nil {
		log.Debug("failed to edit receipt caption", zap.Error(err))
	}

	if approve {
		balance, err := s.ledger.GetBalance(ctx, p.UserID)
		if err != nil {
			log.Warn("failed to read balance after approval", zap.Error(err))
		}
		s.notify(p.UserID, fmt.Sprintf(msgPaymentOK, p.Amount, balance))
	} else {
		s.notify(p.UserID, msgPaymentDenied)
	}
	log.Info("payment decided")
	return p, nil
}

func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// ClaimFreeTrial grants the one free check. It reports false when already used.
func (s *Service) ClaimFreeTrial(ctx context.Context, userID int64) (bool, error) {
	return s.ledger.GrantFreeTrial(ctx, userID)
}

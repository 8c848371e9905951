package ledger

import (
    "fmt"

    "github.com/clubops/treasury/internal/model"
)

// checkShape enforces the per-type link rules before anything is
// written:
//
//   subscription required, card forbidden:
//     subscription_fee, deposit_hold, refund_fee, refund_deposit,
//     refund_service, service_charge (which also requires a line item)
//   card required, subscription forbidden:
//     card_issuance
//   both forbidden:
//     manual_deposit, manual_withdrawal
//   subscription optional, card forbidden:
//     generic_reimbursement
func checkShape(tt model.TxType, subscriptionID, cardID, lineItemID *uint64) error {
    if !tt.Valid() {
        return fmt.Errorf("%w: unknown type %q", ErrInvalidShape, tt)
    }
    requireSub := func() error {
        if subscriptionID == nil {
            return fmt.Errorf("%w: %s requires a subscription link", ErrInvalidShape, tt)
        }
        if cardID != nil {
            return fmt.Errorf("%w: %s forbids a card link", ErrInvalidShape, tt)
        }
        return nil
    }
    switch tt {
    case model.TxSubscriptionFee, model.TxDepositHold,
        model.TxRefundFee, model.TxRefundDeposit, model.TxRefundService:
        if err := requireSub(); err != nil {
            return err
        }
    case model.TxServiceCharge:
        if err := requireSub(); err != nil {
            return err
        }
        if lineItemID == nil {
            return fmt.Errorf("%w: service_charge requires a line item", ErrInvalidShape)
        }
    case model.TxCardIssuance:
        if cardID == nil {
            return fmt.Errorf("%w: card_issuance requires a card link", ErrInvalidShape)
        }
        if subscriptionID != nil {
            return fmt.Errorf("%w: card_issuance forbids a subscription link", ErrInvalidShape)
        }
    case model.TxManualDeposit, model.TxManualWithdrawal:
        if subscriptionID != nil || cardID != nil {
            return fmt.Errorf("%w: %s forbids links", ErrInvalidShape, tt)
        }
    case model.TxGenericReimbursement:
        if cardID != nil {
            return fmt.Errorf("%w: generic_reimbursement forbids a card link", ErrInvalidShape)
        }
    }
    if lineItemID != nil && tt != model.TxServiceCharge && tt != model.TxRefundService {
        return fmt.Errorf("%w: %s forbids a line item link", ErrInvalidShape, tt)
    }
    return nil
}

package projector

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/model"
)

// Estimate adjusts the confirmed snapshot by every pending delegation-affecting
// entry. Validators appear in lexical order and each pending sequence is
// attributed to the validator it touches. The result depends only on its
// inputs.
func Estimate(snapshot model.Snapshot, pending []model.Transfer) model.DelegationsResponse {
	byValidator := make(map[string]*model.DelegationEstimate, len(snapshot.Delegations))
	get := func(validator string) *model.DelegationEstimate {
		est, ok := byValidator[validator]
		if !ok {
			est = &model.DelegationEstimate{
				Validator:    validator,
				Confirmed:    decimal.Zero,
				PendingDelta: decimal.Zero,
			}
			byValidator[validator] = est
		}
		return est
	}

	for _, d := range snapshot.Delegations {
		est := get(d.Validator)
		est.Confirmed = est.Confirmed.Add(d.Amount)
	}

	sequences := make([]uint64, 0, len(pending))
	for _, t := range pending {
		if t.Status != model.TransferPending {
			continue
		}
		sequences = append(sequences, t.Sequence)
		delta, ok := t.Instruction().DelegationDelta()
		if !ok {
			continue
		}
		est := get(t.Target)
		est.PendingDelta = est.PendingDelta.Add(delta)
		est.PendingSequences = append(est.PendingSequences, t.Sequence)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	resp := model.DelegationsResponse{
		Height:           snapshot.Height,
		Delegations:      make([]model.DelegationEstimate, 0, len(byValidator)),
		PendingSequences: sequences,
		TotalConfirmed:   decimal.Zero,
		TotalEstimated:   decimal.Zero,
		FullyConfirmed:   len(sequences) == 0,
	}
	for _, est := range byValidator {
		est.Estimated = est.Confirmed.Add(est.PendingDelta)
		// An undelegation can never take more than is bonded.
		if est.Estimated.Sign() < 0 {
			est.Estimated = decimal.Zero
		}
		sort.Slice(est.PendingSequences, func(i, j int) bool { return est.PendingSequences[i] < est.PendingSequences[j] })
		resp.TotalConfirmed = resp.TotalConfirmed.Add(est.Confirmed)
		resp.TotalEstimated = resp.TotalEstimated.Add(est.Estimated)
		resp.Delegations = append(resp.Delegations, *est)
	}
	sort.Slice(resp.Delegations, func(i, j int) bool {
		return resp.Delegations[i].Validator < resp.Delegations[j].Validator
	})
	return resp
}

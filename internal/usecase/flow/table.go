package flow

import "uipilot/internal/domain/entity"

// CredentialFlowTable is the static action table for the reference
// credential-provisioning workflow: list page -> create form -> created
// modal -> done. Candidates within a state are ordered; the first one
// whose target is visible wins.
func CredentialFlowTable() map[entity.FlowState]entity.ActionTableEntry {
	return map[entity.FlowState]entity.ActionTableEntry{
		entity.StateCredentialsList: {Actions: []entity.ActionSpec{
			{Target: "CREATE CREDENTIALS", Kind: entity.ActionClick, Expect: entity.StateCreateForm},
		}},
		entity.StateCreateForm: {Actions: []entity.ActionSpec{
			{Target: "CREATE", Kind: entity.ActionClick, Expect: entity.StateCreatedModal},
		}},
		entity.StateCreatedModal: {Actions: []entity.ActionSpec{
			{Target: "DOWNLOAD JSON", Kind: entity.ActionClick, Expect: entity.StateDone},
			{Target: "DONE", Kind: entity.ActionClick, Expect: entity.StateDone},
		}},
	}
}

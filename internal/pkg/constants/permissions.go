package constants

const (
	RecordReadings    = "record_readings"
	SubmitBatch       = "submit_batch"
	MintCredits       = "mint_credits"
	ListCredits       = "list_credits"
	BuyCredits        = "buy_credits"
	RetireCredits     = "retire_credits"
	RevokeCredits     = "revoke_credits"
	ApproveSensors    = "approve_sensors"
	CreateSellRequest = "create_sell_request"
	AssignBuyer       = "assign_buyer"
	ConfirmBuy        = "confirm_buy"
	FundWallets       = "fund_wallets"
	ManageActors      = "manage_actors"
	ViewLedger        = "view_ledger"
)

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	RecordReadings:    {Producer},
	SubmitBatch:       {Producer},
	MintCredits:       {Producer},
	ListCredits:       {Producer},
	BuyCredits:        {Buyer},
	RetireCredits:     {Buyer},
	RevokeCredits:     {Regulator},
	ApproveSensors:    {Auditor, Regulator},
	CreateSellRequest: {Producer},
	AssignBuyer:       {Buyer},
	ConfirmBuy:        {Producer},
	FundWallets:       {Regulator},
	ManageActors:      {Regulator},
	ViewLedger:        {Producer, Buyer, Auditor, Regulator},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	for _, r := range PermissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}

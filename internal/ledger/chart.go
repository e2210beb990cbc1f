package ledger

import "strings"

// Well-known account codes used by the posting rules.
const (
	AccountCapital        = "1111"
	AccountClients        = "4111"
	AccountClientSales    = "41111"
	AccountSuppliers      = "4411"
	AccountSupplierBuys   = "44111"
	AccountVATDue         = "4455"
	AccountVATDeductible  = "4456"
	AccountVATCollected   = "4457"
	AccountBank           = "5141"
	AccountCash           = "5161"
	AccountPurchases      = "6114"
	AccountGeneralCharge  = "6131"
	AccountRent           = "6132"
	AccountInsurance      = "6133"
	AccountAdvertising    = "6135"
	AccountTransport      = "6136"
	AccountTelecom        = "6137"
	AccountUtilities      = "6138"
	AccountSalaries       = "6171"
	AccountInterestPaid   = "6211"
	AccountTaxes          = "6311"
	AccountIncomeTax      = "6312"
	AccountSales          = "7121"
	AccountInterestEarned = "7611"
)

// AccountDef declares one chart node.
type AccountDef struct {
	Code string
	Name string
	Type AccountType
}

// DefaultChart returns the standard chart seeded on startup. Codes follow the
// Moroccan general chart of accounts; the first digit is the class.
func DefaultChart() []AccountDef {
	return []AccountDef{
		{AccountCapital, "Capital social", AccountTypeEquity},
		{"1191", "Report a nouveau", AccountTypeEquity},
		{"2332", "Materiel et outillage", AccountTypeAsset},
		{"2340", "Materiel de transport", AccountTypeAsset},
		{"2355", "Materiel informatique", AccountTypeAsset},
		{"3111", "Marchandises", AccountTypeAsset},
		{"3421", "Clients - avances et acomptes", AccountTypeAsset},
		{AccountClients, "Clients", AccountTypeAsset},
		{AccountClientSales, "Clients - ventes de biens et services", AccountTypeAsset},
		{AccountSuppliers, "Fournisseurs", AccountTypeLiability},
		{AccountSupplierBuys, "Fournisseurs - achats de biens et services", AccountTypeLiability},
		{AccountVATDue, "Etat - TVA due", AccountTypeLiability},
		{AccountVATDeductible, "Etat - TVA recuperable", AccountTypeAsset},
		{AccountVATCollected, "Etat - TVA facturee", AccountTypeLiability},
		{AccountBank, "Banques", AccountTypeTreasury},
		{AccountCash, "Caisses", AccountTypeTreasury},
		{AccountPurchases, "Achats de marchandises", AccountTypeExpense},
		{AccountGeneralCharge, "Locations et charges diverses", AccountTypeExpense},
		{AccountRent, "Redevances et loyers", AccountTypeExpense},
		{AccountInsurance, "Primes d'assurances", AccountTypeExpense},
		{AccountAdvertising, "Publicite et relations publiques", AccountTypeExpense},
		{AccountTransport, "Transports", AccountTypeExpense},
		{AccountTelecom, "Telecommunications", AccountTypeExpense},
		{AccountUtilities, "Eau et energie", AccountTypeExpense},
		{AccountSalaries, "Remunerations du personnel", AccountTypeExpense},
		{AccountInterestPaid, "Charges d'interets", AccountTypeExpense},
		{AccountTaxes, "Impots et taxes", AccountTypeExpense},
		{AccountIncomeTax, "Impots sur les resultats", AccountTypeExpense},
		{AccountSales, "Ventes de biens et services produits", AccountTypeRevenue},
		{AccountInterestEarned, "Interets et produits financiers", AccountTypeRevenue},
	}
}

// essentialAccounts are required by the posting rules and recreated on the
// fly when missing from the stored chart.
var essentialAccounts = []AccountDef{
	{AccountBank, "Banques", AccountTypeTreasury},
	{AccountClients, "Clients", AccountTypeAsset},
	{AccountClientSales, "Clients - ventes de biens et services", AccountTypeAsset},
	{AccountSuppliers, "Fournisseurs", AccountTypeLiability},
	{AccountSupplierBuys, "Fournisseurs - achats de biens et services", AccountTypeLiability},
}

// Class returns the chart class of an account code, zero when unknown.
func Class(code string) int {
	if code == "" {
		return 0
	}
	return int(code[0] - '0')
}

// ExpenseAccountCode maps a free-form expense category label to its charge
// account. Matching is substring based on the uppercased label.
func ExpenseAccountCode(category string) string {
	c := strings.ToUpper(strings.TrimSpace(category))
	switch {
	case strings.Contains(c, "LOYER"):
		return AccountRent
	case strings.Contains(c, "SALAIRE"):
		return AccountSalaries
	case strings.Contains(c, "TRANSPORT"):
		return AccountTransport
	case strings.Contains(c, "TELECOM"):
		return AccountTelecom
	case strings.Contains(c, "EAU"), strings.Contains(c, "ELECTRICITE"), strings.Contains(c, "ENERGIE"):
		return AccountUtilities
	case strings.Contains(c, "ASSURANCE"):
		return AccountInsurance
	case strings.Contains(c, "PUB"):
		return AccountAdvertising
	case strings.Contains(c, "IMPOT"), strings.Contains(c, "TAXE"):
		return AccountTaxes
	default:
		return AccountGeneralCharge
	}
}

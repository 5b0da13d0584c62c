package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// An SGML opening tag on its own line that lost its closing bracket.
	unclosedTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser reads bank and credit card statements from OFX/QFX files.
type OFXParser struct {
	opts Options
}

// NewOFXParser creates an OFX parser.
func NewOFXParser(opts Options) *OFXParser {
	return &OFXParser{opts: opts}
}

// preprocess repairs formatting that banks commonly get wrong.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}

// ParseFile implements Parser.
func (p *OFXParser) ParseFile(ctx context.Context, r io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, common.ParseError("ofx", err)
	}

	var out []model.Transaction
	var statements int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			statements++
			out = append(out, p.convertAll(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID), currency(stmt.CurDef))...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			statements++
			out = append(out, p.convertAll(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID), currency(stmt.CurDef))...)
		}
	}

	slog.Info("Parsed OFX file", "transactions", len(out), "statements", statements)
	return out, nil
}

func currency(c ofxgo.CurrSymbol) string {
	s := c.String()
	if s == "XXX" {
		return ""
	}
	return s
}

func (p *OFXParser) convertAll(txs []ofxgo.Transaction, account, cur string) []model.Transaction {
	out := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		converted, err := p.convert(tx, account, cur)
		if err != nil {
			slog.Warn("Skipping OFX transaction", "fitid", string(tx.FiTID), "error", err)
			continue
		}
		out = append(out, converted)
	}
	return out
}

// convert maps an OFX entry to a transaction. OFX signs debits negative; the
// amount is stored unsigned with the direction in the transaction type.
func (p *OFXParser) convert(tx ofxgo.Transaction, account, cur string) (model.Transaction, error) {
	amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	kind := "deposit"
	if amount.IsNegative() {
		kind = "withdrawal"
	}
	posted := tx.DtPosted.Time

	out := model.Transaction{
		ID:            string(tx.FiTID),
		CustomerID:    p.opts.CustomerID,
		AccountNumber: account,
		Amount:        amount.Abs(),
		Currency:      cur,
		Method:        method(tx.TrnType.String()),
		Type:          kind,
		Timestamp:     &posted,
	}
	if tx.Payee != nil && tx.Payee.City != "" {
		out.Location = string(tx.Payee.City)
	}
	if name := merchantName(tx); name != "" {
		out.Extra = map[string]any{"description": name}
	}
	assignID(&out)
	return out, nil
}

// method maps the OFX transaction type onto the payment methods used in
// branch data.
func method(trnType string) string {
	switch trnType {
	case "ATM", "CASH":
		return "ATM"
	case "POS":
		return "Card"
	case "CHECK":
		return "Cheque"
	case "XFER", "DIRECTDEP", "DIRECTDEBIT", "REPEATPMT", "PAYMENT":
		return "Transfer"
	default:
		return "Bank"
	}
}

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericNames = map[string]bool{
	"DEBIT": true, "CREDIT": true, "PURCHASE": true, "PAYMENT": true,
	"POS TRANSACTION": true, "CARD PURCHASE": true,
}

// merchantName prefers PAYEE, then NAME, then MEMO when NAME is generic.
func merchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}
	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && genericNames[strings.ToUpper(name)] {
		name = strings.TrimSpace(string(tx.Memo))
	}
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}
	// Leading "MM/DD " posting dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

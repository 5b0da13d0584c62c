package chat

import (
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/testutil"
)

// chatFixture is five transactions for C1:
//
//	T-1 ATM  100  Mumbai
//	T-2 UPI  2500 Delhi
//	T-3 UPI  40   Delhi  (fraud)
//	T-4 Card 900  Mumbai
//	T-5 ATM  60   Pune
func chatFixture() []model.Transaction {
	return testutil.NewTransactions("C1").Add(
		testutil.Txn("T-1").Clean(),
		testutil.Txn("T-2").Clean().Method("UPI").Amount(2500).Location("Delhi"),
		testutil.Txn("T-3").Clean().Method("UPI").Amount(40).Location("Delhi").Flags(1, 0, 0),
		testutil.Txn("T-4").Clean().Method("Card").Amount(900),
		testutil.Txn("T-5").Clean().Amount(60).Location("Pune"),
	).Build()
}

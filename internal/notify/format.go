package notify

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// Format renders ev as a notification title and body. Amounts are printed in
// the token's native units.
func Format(ev domain.Event) (title, message string) {
	title = strings.ReplaceAll(string(ev.Type), "_", " ")

	var lines []string
	add := func(k, v string) { lines = append(lines, k+": "+v) }

	if ev.OrderID != 0 {
		add("order", fmt.Sprintf("#%d", ev.OrderID))
	}
	if ev.Order != nil {
		add("side", string(ev.Order.Side))
	}
	if ev.Token != (common.Address{}) {
		add("token", ev.Token.Hex())
	}
	if ev.Account != (common.Address{}) {
		add("account", ev.Account.Hex())
	}
	if ev.Amount != nil {
		add("amount", ev.Amount.String())
	}
	if ev.Fill != nil && ev.Fill.ReleasedNative != nil {
		add("released", ev.Fill.ReleasedNative.String())
	}
	if ev.Listing != nil {
		add("index", fmt.Sprintf("%d", ev.Listing.Index))
		add("price source", string(ev.Listing.Source.Kind))
	}
	add("seq", fmt.Sprintf("%d", ev.Seq))
	return title, strings.Join(lines, "\n")
}

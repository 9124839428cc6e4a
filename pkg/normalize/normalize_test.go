package normalize

import (
	"errors"
	"reflect"
	"testing"

	"tally-hq/tally/pkg/engine"
	"tally-hq/tally/pkg/rules"
	"tally-hq/tally/pkg/txn"
)

const testRules = `field.description = regex_replace(field.description, "^APLPAY\s+", "")
field.memo = upper(field.memo)
field.amount = amount * -1
field.broken = missing + 1

[Starbucks]
match: startswith("STARBUCKS")
category: Food
subcategory: Coffee
tags: coffee
field: store = extract("#(\d+)")

[Large Refund]
match: amount > 100
tags: large
`

func newEngine(t *testing.T, text string) *engine.Engine {
	t.Helper()
	set, err := rules.Parse(text)
	if err != nil {
		t.Fatalf("rules.Parse() error = %v", err)
	}
	e, err := engine.New(set, nil, nil)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return e
}

func TestApplyTransforms(t *testing.T) {
	set, err := rules.Parse(testRules)
	if err != nil {
		t.Fatal(err)
	}

	tr := &txn.Transaction{Description: "APLPAY STARBUCKS #42", Amount: -5, Fields: map[string]string{"memo": "latte"}}
	raw := ApplyTransforms(tr, set.Transforms, nil, nil)

	if tr.Description != "STARBUCKS #42" {
		t.Errorf("Description = %q, want %q", tr.Description, "STARBUCKS #42")
	}
	if tr.Amount != 5 {
		t.Errorf("Amount = %v, want 5", tr.Amount)
	}
	if tr.Fields["memo"] != "LATTE" {
		t.Errorf("Fields[memo] = %q, want LATTE", tr.Fields["memo"])
	}
	want := map[string]string{
		"_raw_description": "APLPAY STARBUCKS #42",
		"_raw_memo":        "latte",
		"_raw_amount":      "-5.0",
	}
	if !reflect.DeepEqual(raw, want) {
		t.Errorf("raw = %v, want %v", raw, want)
	}
}

func TestApplyTransformsKeepsFirstOriginal(t *testing.T) {
	set, err := rules.Parse("field.description = upper(description)\nfield.description = trim(description)\nfield.date = \"2025-02-03\"\n")
	if err != nil {
		t.Fatal(err)
	}
	tr := &txn.Transaction{Description: " shop "}
	raw := ApplyTransforms(tr, set.Transforms, nil, nil)
	if tr.Description != "SHOP" {
		t.Errorf("Description = %q, want SHOP", tr.Description)
	}
	if raw["_raw_description"] != " shop " {
		t.Errorf("_raw_description = %q, want the first original", raw["_raw_description"])
	}
	if tr.Date.Format(txn.DateLayout) != "2025-02-03" || raw["_raw_date"] != "" {
		t.Errorf("Date = %v, _raw_date = %q", tr.Date, raw["_raw_date"])
	}
}

func TestMerchantName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SQ *BLUE BOTTLE COFFEE #123", "Sq Blue Bottle"},
		{"  AMZN   MKTP US*2K3 ", "Amzn Mktp Us"},
		{"uber", "Uber"},
		{"", Unknown},
		{"*** ###", Unknown},
	}
	for _, tt := range tests {
		if got := MerchantName(tt.in); got != tt.want {
			t.Errorf("MerchantName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := CleanDescription(" a \t b\n c "); got != "a b c" {
		t.Errorf("CleanDescription() = %q, want %q", got, "a b c")
	}
}

func TestNormalizeMatched(t *testing.T) {
	n := New(newEngine(t, testRules), nil)
	in := &txn.Transaction{Description: "APLPAY STARBUCKS #42", Amount: -150}

	res, err := n.Normalize(in, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Merchant != "Starbucks" || res.Category != "Food" || res.Subcategory != "Coffee" {
		t.Errorf("got %q %q/%q, want Starbucks Food/Coffee", res.Merchant, res.Category, res.Subcategory)
	}
	if res.Info == nil || res.Info.Source != SourceRule {
		t.Fatalf("Info = %+v, want rule source", res.Info)
	}
	if res.Info.Pattern != `startswith("STARBUCKS")` {
		t.Errorf("Pattern = %q", res.Info.Pattern)
	}
	if got, want := res.Info.Tags, []string{"large", "coffee"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}
	if res.Info.ExtraFields["store"] != "42" {
		t.Errorf("ExtraFields[store] = %v, want 42", res.Info.ExtraFields["store"])
	}
	if res.Info.RawValues["_raw_description"] != "APLPAY STARBUCKS #42" {
		t.Errorf("RawValues = %v", res.Info.RawValues)
	}
	if in.Description != "APLPAY STARBUCKS #42" || in.Amount != -150 {
		t.Error("Normalize() modified its input")
	}
}

func TestNormalizeFallback(t *testing.T) {
	n := New(newEngine(t, "[Netflix]\nmatch: contains(\"NETFLIX\")\ncategory: Subscriptions\n"), nil)

	res, err := n.Normalize(&txn.Transaction{Description: "JOE'S PIZZA & GRILL NYC"}, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Merchant != "Joe S Pizza" {
		t.Errorf("Merchant = %q, want %q", res.Merchant, "Joe S Pizza")
	}
	if res.Category != Unknown || res.Subcategory != Unknown {
		t.Errorf("Category = %q/%q, want Unknown/Unknown", res.Category, res.Subcategory)
	}
	if res.Info != nil {
		t.Errorf("Info = %+v, want nil", res.Info)
	}
}

func TestNormalizeUsesDefaultEngine(t *testing.T) {
	t.Cleanup(engine.ClearDefault)
	n := New(nil, nil)

	if _, err := n.Normalize(&txn.Transaction{Description: "X"}, nil); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Normalize() error = %v, want ErrNoEngine", err)
	}

	engine.SetDefault(newEngine(t, testRules))
	res, err := n.Normalize(&txn.Transaction{Description: "GYM", Amount: -200}, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Category != Unknown {
		t.Errorf("Category = %q, want Unknown", res.Category)
	}
	if res.Info == nil || res.Info.Source != SourceAuto || !reflect.DeepEqual(res.Info.Tags, []string{"large"}) {
		t.Errorf("Info = %+v, want auto source with tag large", res.Info)
	}
}

package notionsync

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names shared by both databases.
const (
	propExternalID = "External ID"
	propCurrency   = "Currency"
	propBalance    = "Balance"
	propType       = "Type"
	propBank       = "Bank"
)

// minorUnitExp renders integer minor units as a two-decimal amount.
const minorUnitExp = -2

func titleProp(content string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func textProp(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func selectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}

func multiSelectProp(names []string) notionapi.MultiSelectProperty {
	opts := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, notionapi.Option{Name: n})
	}
	return notionapi.MultiSelectProperty{MultiSelect: opts}
}

func dateProp(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t.UTC())
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
}

func moneyProp(minor int64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: decimal.New(minor, minorUnitExp).InexactFloat64()}
}

func numberProp(v int) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: float64(v)}
}

func textEquals(property, value string) notionapi.Filter {
	return &notionapi.PropertyFilter{
		Property: property,
		RichText: &notionapi.TextFilterCondition{Equals: value},
	}
}

func selectEquals(property, value string) notionapi.Filter {
	return &notionapi.PropertyFilter{
		Property: property,
		Select:   &notionapi.SelectFilterCondition{Equals: value},
	}
}

// Readers accept both pointer (decoded) and value (constructed) property forms.

func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, p := range parts {
		switch {
		case p.PlainText != "":
			b.WriteString(p.PlainText)
		case p.Text != nil:
			b.WriteString(p.Text.Content)
		}
	}
	return b.String()
}

func readText(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case notionapi.TitleProperty:
		return plainText(p.Title)
	}
	return ""
}

func readOptionalText(props notionapi.Properties, name string) *string {
	if v := readText(props, name); v != "" {
		return &v
	}
	return nil
}

func readSelect(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

func readMultiSelect(props notionapi.Properties, name string) []string {
	var opts []notionapi.Option
	switch p := props[name].(type) {
	case *notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	}
	if len(opts) == 0 {
		return nil
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return names
}

func readNumber(props notionapi.Properties, name string) (float64, bool) {
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		return p.Number, true
	case notionapi.NumberProperty:
		return p.Number, true
	}
	return 0, false
}

func readMoney(props notionapi.Properties, name string) *int64 {
	f, ok := readNumber(props, name)
	if !ok {
		return nil
	}
	minor := decimal.NewFromFloat(f).Shift(-minorUnitExp).Round(0).IntPart()
	return &minor
}

func readInt(props notionapi.Properties, name string) *int {
	f, ok := readNumber(props, name)
	if !ok {
		return nil
	}
	v := int(f)
	return &v
}

func readCheckbox(props notionapi.Properties, name string) *bool {
	switch p := props[name].(type) {
	case *notionapi.CheckboxProperty:
		v := p.Checkbox
		return &v
	case notionapi.CheckboxProperty:
		v := p.Checkbox
		return &v
	}
	return nil
}

func readDate(props notionapi.Properties, name string) *time.Time {
	var obj *notionapi.DateObject
	switch p := props[name].(type) {
	case *notionapi.DateProperty:
		obj = p.Date
	case notionapi.DateProperty:
		obj = p.Date
	}
	if obj == nil || obj.Start == nil {
		return nil
	}
	t := time.Time(*obj.Start).UTC()
	return &t
}

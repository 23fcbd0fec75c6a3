package enums

import "fmt"

// ItemCondition grades the physical state of an item.
type ItemCondition string

const (
	ItemConditionNew     ItemCondition = "new"
	ItemConditionGood    ItemCondition = "good"
	ItemConditionFair    ItemCondition = "fair"
	ItemConditionPoor    ItemCondition = "poor"
	ItemConditionDamaged ItemCondition = "damaged"
)

var validItemConditions = []ItemCondition{
	ItemConditionNew,
	ItemConditionGood,
	ItemConditionFair,
	ItemConditionPoor,
	ItemConditionDamaged,
}

// String implements fmt.Stringer.
func (c ItemCondition) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ItemCondition.
func (c ItemCondition) IsValid() bool {
	for _, candidate := range validItemConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseItemCondition converts raw input into an ItemCondition.
func ParseItemCondition(value string) (ItemCondition, error) {
	for _, candidate := range validItemConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item condition %q", value)
}

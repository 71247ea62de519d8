package role

// 道具 ID
const (
	ItemPotion = "potion"
	ItemShield = "shield"
)

// Item 道具定义
type Item struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Target TargetKind `json:"target"`
	Effect Effect     `json:"effect"`
	Amount int        `json:"amount"`
	Uses   int        `json:"uses"` // 开局携带的次数
}

// EffectHeal 道具专用：回复生命
const EffectHeal Effect = "heal"

func defaultItems() []*Item {
	return []*Item{
		{ID: ItemPotion, Name: "药水", Target: TargetNone, Effect: EffectHeal, Amount: 1, Uses: 1},
		{ID: ItemShield, Name: "护盾", Target: TargetSingle, Effect: EffectProtect, Uses: 1},
	}
}

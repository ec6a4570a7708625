// internal/board/classic.go
package board

var railroadTiers = []int{25, 50, 100, 200}
var utilityMultipliers = []int{4, 10}

func property(name, group string, price, rent int) Tile {
	return Tile{Kind: KindProperty, Name: name, Group: group, Price: price, BaseRent: rent}
}

func railroad(name string) Tile {
	return Tile{Kind: KindRailroad, Name: name, Group: "railroad", Price: 200, Tiers: railroadTiers}
}

func utility(name string) Tile {
	return Tile{Kind: KindUtility, Name: name, Group: "utility", Price: 150, Multipliers: utilityMultipliers}
}

func tax(name string, amount int) Tile {
	return Tile{Kind: KindTax, Name: name, Amount: amount}
}

func special(kind TileKind, name string) Tile {
	return Tile{Kind: kind, Name: name}
}

// ClassicTiles is the canonical 40 tile layout.
func ClassicTiles() []Tile {
	return []Tile{
		special(KindGo, "Go"),
		property("Mediterranean Avenue", "brown", 60, 2),
		special(KindCommunityChest, "Community Chest"),
		property("Baltic Avenue", "brown", 60, 4),
		tax("Income Tax", 200),
		railroad("Reading Railroad"),
		property("Oriental Avenue", "light_blue", 100, 6),
		special(KindChance, "Chance"),
		property("Vermont Avenue", "light_blue", 100, 6),
		property("Connecticut Avenue", "light_blue", 120, 8),
		special(KindJail, "Jail"),
		property("St. Charles Place", "pink", 140, 10),
		utility("Electric Company"),
		property("States Avenue", "pink", 140, 10),
		property("Virginia Avenue", "pink", 160, 12),
		railroad("Pennsylvania Railroad"),
		property("St. James Place", "orange", 180, 14),
		special(KindCommunityChest, "Community Chest"),
		property("Tennessee Avenue", "orange", 180, 14),
		property("New York Avenue", "orange", 200, 16),
		special(KindFreeParking, "Free Parking"),
		property("Kentucky Avenue", "red", 220, 18),
		special(KindChance, "Chance"),
		property("Indiana Avenue", "red", 220, 18),
		property("Illinois Avenue", "red", 240, 20),
		railroad("B. & O. Railroad"),
		property("Atlantic Avenue", "yellow", 260, 22),
		property("Ventnor Avenue", "yellow", 260, 22),
		utility("Water Works"),
		property("Marvin Gardens", "yellow", 280, 24),
		special(KindGoToJail, "Go To Jail"),
		property("Pacific Avenue", "green", 300, 26),
		property("North Carolina Avenue", "green", 300, 26),
		special(KindCommunityChest, "Community Chest"),
		property("Pennsylvania Avenue", "green", 320, 28),
		railroad("Short Line"),
		special(KindChance, "Chance"),
		property("Park Place", "dark_blue", 350, 35),
		tax("Luxury Tax", 100),
		property("Boardwalk", "dark_blue", 400, 50),
	}
}

// Classic returns the canonical board. It panics only if the built-in table is malformed.
func Classic() *StaticBoard {
	b, err := New(ClassicTiles())
	if err != nil {
		panic(err)
	}
	return b
}

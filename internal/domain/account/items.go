package account

const (
	ItemPokeBall   = 1
	ItemGreatBall  = 2
	ItemUltraBall  = 3
	ItemMasterBall = 4

	ItemPotion      = 101
	ItemSuperPotion = 102
	ItemHyperPotion = 103
	ItemMaxPotion   = 104
	ItemRevive      = 201
	ItemMaxRevive   = 202

	ItemRazzBerry = 701

	ItemIncubatorUnlimited = 901
	ItemIncubatorBasic     = 902
)

// Balls are ordered best first.
var Balls = []int{ItemUltraBall, ItemGreatBall, ItemPokeBall}

var Potions = []int{ItemPotion, ItemSuperPotion, ItemHyperPotion, ItemMaxPotion, ItemRevive, ItemMaxRevive}

const (
	FortReachKm    = 0.038
	PokemonReachKm = 0.048
	GymDetailsKm   = 0.45
)

const HighLevel = 30

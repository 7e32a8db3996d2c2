package domain

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	AuctionCreated = "auction.created"
	AuctionUpdated = "auction.updated"

	// AuctionSeeded no viaja por el bus: marca los items que vienen del seed inicial.
	AuctionSeeded = "auction.seeded"
)

const AuctionTopic = "auction-created-topic"

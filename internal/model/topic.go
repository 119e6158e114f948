package model

// TopicMap maps petition identifier to a single topic label
type TopicMap map[PetitionID]string

// TopicNotAvailable is the label reported for petitions without a topic
const TopicNotAvailable = "N/A"

// TopicOther is the label for petitions outside the fixed taxonomy
const TopicOther = "other"

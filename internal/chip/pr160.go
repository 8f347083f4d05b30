package chip

// PR160 readout chip
//
// - 160 pixels laid out as 8 rows x 20 columns
// - 6 discriminator DAC channels per pixel
// - Chip DACs referenced to 0.75 V - 1.75 V, 11-bit codes

const (
	// DefaultSpecName is the spec used when none is configured.
	DefaultSpecName = "pr160"

	PR160Rows = 8
	PR160Cols = 20

	// DACChannels is the number of discriminator channels per pixel.
	DACChannels = 6

	// Chip DAC reference voltages
	DACReferenceMin = 0.75
	DACReferenceMax = 1.75
)

// PR160Spec returns the fully specified PR160 chip definition.
func PR160Spec() *BaseSpec {
	return &BaseSpec{
		SpecName: DefaultSpecName,
		Layout:   Grid{Rows: PR160Rows, Cols: PR160Cols},
		Channels: DACChannels,
		DACVolts: VoltageRange{Min: DACReferenceMin, Max: DACReferenceMax},
		Notes:    "8x20 pixel readout chip",
	}
}

// PR64Spec returns a small 8x8 test chip sharing the PR160 DAC front end.
func PR64Spec() *BaseSpec {
	return &BaseSpec{
		SpecName: "pr64",
		Layout:   Grid{Rows: 8, Cols: 8},
		Channels: DACChannels,
		DACVolts: VoltageRange{Min: DACReferenceMin, Max: DACReferenceMax},
		Notes:    "8x8 test structure",
	}
}

// Package register encodes and decodes the configuration fields packed into
// pixel and chip register matrices.
package register

import "fmt"

// Field identifies one row of a pixel register.
type Field int

// Sub-fields repeated for every discriminator DAC channel.
const (
	subValue = iota
	subPolarity
	subRange
	subMask
	subFields
)

// Channels is the number of discriminator DAC channels in a pixel register.
const Channels = 6

// Shared fields follow the per-channel block.
const (
	FeedRange Field = Channels*subFields + iota
	FeedValue
	TestPulseEnable

	// NumFields is the number of rows in a pixel register.
	NumFields int = Channels*subFields + 3
)

// positions maps every field to its row. Filled once, read-only afterwards.
var positions = func() [NumFields]int {
	var p [NumFields]int
	for f := range p {
		p[f] = f
	}
	return p
}()

// Value returns the threshold value field of DAC channel ch.
func Value(ch int) (Field, error) { return channelField(ch, subValue) }

// Polarity returns the polarity field of DAC channel ch.
func Polarity(ch int) (Field, error) { return channelField(ch, subPolarity) }

// Range returns the range flag field of DAC channel ch.
func Range(ch int) (Field, error) { return channelField(ch, subRange) }

// Mask returns the mask field of DAC channel ch.
func Mask(ch int) (Field, error) { return channelField(ch, subMask) }

func channelField(ch, sub int) (Field, error) {
	if ch < 0 || ch >= Channels {
		return 0, fmt.Errorf("%w: dac channel %d not in [0, %d)", ErrFieldOutOfRange, ch, Channels)
	}
	return Field(ch*subFields + sub), nil
}

// Position returns the register row holding f.
func (f Field) Position() (int, error) {
	if f < 0 || int(f) >= NumFields {
		return 0, fmt.Errorf("%w: field %d", ErrFieldOutOfRange, int(f))
	}
	return positions[f], nil
}

func (f Field) String() string {
	switch {
	case f == FeedRange:
		return "feed.range"
	case f == FeedValue:
		return "feed.value"
	case f == TestPulseEnable:
		return "testpulse.enable"
	case f >= 0 && int(f) < Channels*subFields:
		ch, sub := int(f)/subFields, int(f)%subFields
		return fmt.Sprintf("disc%d.%s", ch, [...]string{"value", "polarity", "range", "mask"}[sub])
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Fields returns every defined field in row order.
func Fields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

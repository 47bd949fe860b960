package donations

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const discriminatorLen = 8

var (
	configDiscriminator     = accountDiscriminator("Config")
	donorDiscriminator      = accountDiscriminator("Donor")
	donorIndexDiscriminator = accountDiscriminator("DonorIndex")
)

// Encoded record sizes. Donor is variable because of its strings; the value
// here is the upper bound.
const (
	ConfigSize     = discriminatorLen + 32 + 32 + 1 + 8 + 8 + TopSize*16
	DonorMaxSize   = discriminatorLen + 32 + 8 + 8 + 8 + 4 + MaxNicknameLen + 4 + MaxDescriptionLen + 8
	DonorIndexSize = discriminatorLen + 8 + 32 + 32
)

func accountDiscriminator(name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [discriminatorLen]byte
	copy(out[:], sum[:discriminatorLen])
	return out
}

func writePublicKey(enc *bin.Encoder, pk solana.PublicKey) error {
	return enc.WriteBytes(pk[:], false)
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder, limit int) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", err
	}
	if int(n) > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFieldTooLong, n, limit)
	}
	if n == 0 {
		return "", nil
	}
	raw, err := dec.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e TopEntry) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(e.DonorID, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint64(e.LifetimeAmount, bin.LE)
}

func (e *TopEntry) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if e.DonorID, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	e.LifetimeAmount, err = dec.ReadUint64(bin.LE)
	return err
}

func (c Config) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, c.Admin); err != nil {
		return err
	}
	if err := writePublicKey(enc, c.Treasury); err != nil {
		return err
	}
	if err := enc.WriteBool(c.Paused); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.NextDonorID, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.TotalDonated, bin.LE); err != nil {
		return err
	}
	for _, entry := range c.Top10 {
		if err := entry.MarshalWithEncoder(enc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if c.Admin, err = readPublicKey(dec); err != nil {
		return err
	}
	if c.Treasury, err = readPublicKey(dec); err != nil {
		return err
	}
	if c.Paused, err = dec.ReadBool(); err != nil {
		return err
	}
	if c.NextDonorID, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.TotalDonated, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	for i := range c.Top10 {
		if err := c.Top10[i].UnmarshalWithDecoder(dec); err != nil {
			return err
		}
	}
	return nil
}

func (d Donor) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, d.Wallet); err != nil {
		return err
	}
	for _, v := range []uint64{d.DonorID, d.LifetimeAmount, d.DonationsCount} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	if err := writeString(enc, d.Nickname); err != nil {
		return err
	}
	if err := writeString(enc, d.Description); err != nil {
		return err
	}
	return enc.WriteInt64(d.LastDonationTs, bin.LE)
}

func (d *Donor) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if d.Wallet, err = readPublicKey(dec); err != nil {
		return err
	}
	if d.DonorID, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.LifetimeAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.DonationsCount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if d.Nickname, err = readString(dec, MaxNicknameLen); err != nil {
		return err
	}
	if d.Description, err = readString(dec, MaxDescriptionLen); err != nil {
		return err
	}
	d.LastDonationTs, err = dec.ReadInt64(bin.LE)
	return err
}

func (i DonorIndex) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(i.DonorID, bin.LE); err != nil {
		return err
	}
	if err := writePublicKey(enc, i.Wallet); err != nil {
		return err
	}
	return writePublicKey(enc, i.DonorAddress)
}

func (i *DonorIndex) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if i.DonorID, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if i.Wallet, err = readPublicKey(dec); err != nil {
		return err
	}
	i.DonorAddress, err = readPublicKey(dec)
	return err
}

func encodeRecord(disc [discriminatorLen]byte, rec bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if err := rec.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(kind string, data []byte, disc [discriminatorLen]byte, rec bin.BinaryUnmarshaler) error {
	if len(data) < discriminatorLen || !bytes.Equal(data[:discriminatorLen], disc[:]) {
		return fmt.Errorf("%w: not a %s record", ErrInvalidAccount, kind)
	}
	if err := rec.UnmarshalWithDecoder(bin.NewBorshDecoder(data[discriminatorLen:])); err != nil {
		return fmt.Errorf("donations: decode %s: %w", kind, err)
	}
	return nil
}

// EncodeConfig serialises cfg with its account discriminator.
func EncodeConfig(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("donations: nil config")
	}
	return encodeRecord(configDiscriminator, cfg)
}

// DecodeConfig parses a config record.
func DecodeConfig(data []byte) (*Config, error) {
	cfg := new(Config)
	if err := decodeRecord("config", data, configDiscriminator, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeDonor serialises a donor record.
func EncodeDonor(donor *Donor) ([]byte, error) {
	if donor == nil {
		return nil, fmt.Errorf("donations: nil donor")
	}
	if len(donor.Nickname) > MaxNicknameLen || len(donor.Description) > MaxDescriptionLen {
		return nil, ErrFieldTooLong
	}
	return encodeRecord(donorDiscriminator, donor)
}

// DecodeDonor parses a donor record.
func DecodeDonor(data []byte) (*Donor, error) {
	donor := new(Donor)
	if err := decodeRecord("donor", data, donorDiscriminator, donor); err != nil {
		return nil, err
	}
	return donor, nil
}

// EncodeDonorIndex serialises a donor index record.
func EncodeDonorIndex(index *DonorIndex) ([]byte, error) {
	if index == nil {
		return nil, fmt.Errorf("donations: nil donor index")
	}
	return encodeRecord(donorIndexDiscriminator, index)
}

// DecodeDonorIndex parses a donor index record.
func DecodeDonorIndex(data []byte) (*DonorIndex, error) {
	index := new(DonorIndex)
	if err := decodeRecord("donor index", data, donorIndexDiscriminator, index); err != nil {
		return nil, err
	}
	return index, nil
}

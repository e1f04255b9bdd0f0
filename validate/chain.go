package validate

import (
	"bytes"
	"errors"

	"github.com/dnsprover/dnsprover/internal/rootanchor"
	"github.com/dnsprover/dnsprover/internal/wire"
)

var errChain = errors.New("validate: delegation chain does not lead to the trust anchor")

// chainWalker validates DNSKEY RRsets by walking DS records up to the
// hard-coded root trust anchor, memoizing each zone it has already
// proven so a proof with many signer names under the same zone only
// does the work once.
type chainWalker struct {
	idx       *index
	now       uint32
	validated map[wire.Name][]wire.DNSKEY
	window    *validityWindow
}

func newChainWalker(idx *index, now uint32, window *validityWindow) *chainWalker {
	return &chainWalker{
		idx:       idx,
		now:       now,
		validated: make(map[wire.Name][]wire.DNSKEY),
		window:    window,
	}
}

// trustedKeys returns the DNSKEY set at zone, having proven it either
// matches the root trust anchor or chains to it via a DS at the parent.
func (w *chainWalker) trustedKeys(zone wire.Name) ([]wire.DNSKEY, error) {
	if keys, ok := w.validated[zone]; ok {
		return keys, nil
	}

	dnskeySet := w.idx.rrset(zone, wire.TypeDNSKEY)
	keys := w.idx.dnskeys(zone)
	if len(dnskeySet) == 0 {
		return nil, errChain
	}

	trustedTag, trustedAlg, err := w.findTrustedKey(zone, keys)
	if err != nil {
		return nil, err
	}

	verified := false
	for _, sig := range w.idx.rrsigs(zone, wire.TypeDNSKEY) {
		if sig.SignerName != zone || sig.KeyTag != trustedTag || sig.Algorithm != trustedAlg {
			continue
		}
		for _, k := range keys {
			if keyTag(k) != trustedTag || k.Algorithm != trustedAlg {
				continue
			}
			if err := verifyRRSIG(sig, k, dnskeySet, w.now); err == nil {
				verified = true
				w.window.note(sig)
				break
			}
		}
		if verified {
			break
		}
	}
	if !verified {
		return nil, errChain
	}

	w.validated[zone] = keys
	return keys, nil
}

// findTrustedKey locates the (keyTag, algorithm) of the key in keys that
// is anchored either directly (the root) or via a parent DS record, and
// returns that identity without yet checking the DNSKEY RRset's own
// self-signature (the caller does that).
func (w *chainWalker) findTrustedKey(zone wire.Name, keys []wire.DNSKEY) (uint16, byte, error) {
	if zone.IsRoot() {
		for _, k := range keys {
			if keyTag(k) != rootanchor.KeyTag || k.Algorithm != rootanchor.Algorithm {
				continue
			}
			digest, ok := dsDigest(zone, k, rootanchor.DigestType)
			if ok && bytes.Equal(digest, rootanchor.Digest) {
				return rootanchor.KeyTag, rootanchor.Algorithm, nil
			}
		}
		return 0, 0, errChain
	}

	parent := zone.Parent()
	parentKeys, err := w.trustedKeys(parent)
	if err != nil {
		return 0, 0, err
	}

	dsSet := w.idx.rrset(zone, wire.TypeDS)
	if len(dsSet) == 0 {
		return 0, 0, errChain
	}
	if !w.verifyDSSet(zone, parent, dsSet, parentKeys) {
		return 0, 0, errChain
	}

	for _, rec := range dsSet {
		ds := rec.RR.(wire.DS)
		for _, k := range keys {
			if ds.KeyTag != keyTag(k) || ds.Algorithm != k.Algorithm {
				continue
			}
			digest, ok := dsDigest(zone, k, ds.DigestType)
			if ok && bytes.Equal(digest, ds.Digest) {
				return ds.KeyTag, ds.Algorithm, nil
			}
		}
	}
	return 0, 0, errChain
}

func (w *chainWalker) verifyDSSet(zone, parent wire.Name, dsSet []wire.Record, parentKeys []wire.DNSKEY) bool {
	for _, sig := range w.idx.rrsigs(zone, wire.TypeDS) {
		if sig.SignerName != parent {
			continue
		}
		for _, pk := range parentKeys {
			if sig.KeyTag != keyTag(pk) || sig.Algorithm != pk.Algorithm {
				continue
			}
			if err := verifyRRSIG(sig, pk, dsSet, w.now); err == nil {
				w.window.note(sig)
				return true
			}
		}
	}
	return false
}

package models

import "fmt"

// Fingerprint is the analyzed form of a complaint used for matching: its
// embedding, keyword set, one-line summary and categorical attributes.
type Fingerprint struct {
	DistrictID   *int64    `json:"district_id,omitempty"`
	TargetObject *string   `json:"target_object,omitempty"`
	DistrictName string    `json:"district_name,omitempty"`
	CoreSummary  string    `json:"core_summary"`
	Embedding    []float32 `json:"-"`
	Keywords     []string  `json:"keywords"`
	ComplaintID  int64     `json:"complaint_id"`
}

// HasEmbedding reports whether the fingerprint carries a non-empty embedding.
func (f *Fingerprint) HasEmbedding() bool {
	return f != nil && len(f.Embedding) > 0
}

// SameDistrict reports whether both fingerprints belong to the same district.
// Two unknown districts count as the same bucket.
func (f *Fingerprint) SameDistrict(o *Fingerprint) bool {
	return equalInt64Ptr(f.DistrictID, o.DistrictID)
}

// SameTarget reports whether both fingerprints name the same target object.
// Two unknown targets count as the same bucket.
func (f *Fingerprint) SameTarget(o *Fingerprint) bool {
	if f.TargetObject == nil || o.TargetObject == nil {
		return f.TargetObject == nil && o.TargetObject == nil
	}
	return *f.TargetObject == *o.TargetObject
}

// PartitionKey is the hard categorical key complaints are grouped by before
// clustering. Unset fields are ignored by the grouping policy.
type PartitionKey struct {
	District    string
	Target      string
	HasDistrict bool
	HasTarget   bool
}

// String renders the key for logs.
func (k PartitionKey) String() string {
	d, t := "*", "*"
	if k.HasDistrict {
		d = k.District
	}
	if k.HasTarget {
		t = k.Target
	}
	return fmt.Sprintf("district=%s target=%s", d, t)
}

// Partition builds the partition key of the fingerprint. byDistrict and
// byTarget select which attributes take part; a missing attribute forms its
// own "null" bucket.
func (f *Fingerprint) Partition(byDistrict, byTarget bool) PartitionKey {
	var k PartitionKey
	if byDistrict {
		k.HasDistrict = true
		k.District = "null"
		if f.DistrictID != nil {
			k.District = fmt.Sprintf("%d", *f.DistrictID)
		}
	}
	if byTarget {
		k.HasTarget = true
		k.Target = "\x00null"
		if f.TargetObject != nil {
			k.Target = *f.TargetObject
		}
	}
	return k
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

package engine

import (
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/classification"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/Veraticus/the-receipts-must-flow/internal/uom"
)

// rulesetDocuments feed the compiled ruleset. Layout documents are not listed
// here; the resolver reads them through the store on every call.
var rulesetDocuments = []string{
	rules.SharedDocument,
	rules.UoMDocument,
	rules.CategoriesL1Document,
	rules.CategoriesL2Document,
	rules.CategoryMapsDocument,
	rules.CategoryKeywordsDocument,
}

// ruleset is the compiled, immutable form of the non-layout rule documents.
type ruleset struct {
	pipeline *classification.Pipeline
	uom      *uom.Extractor
	key      string
	shared   rules.SharedConfig
}

// rules returns the current ruleset. With hot reload on, document fingerprints
// are checked on every call and the ruleset is rebuilt when any changed.
func (e *Engine) rules() (*ruleset, error) {
	current := e.rs.Load()
	if current != nil && !e.store.HotReload() {
		return current, nil
	}

	key, err := e.rulesetKey()
	if err != nil {
		return nil, err
	}
	if current != nil && current.key == key {
		return current, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if current = e.rs.Load(); current != nil && current.key == key {
		return current, nil
	}
	rs, err := e.buildRuleset(key)
	if err != nil {
		return nil, err
	}
	if current != nil {
		common.LogInfo("Rules reloaded", common.Fields{"rules_dir": e.store.Dir()})
	}
	e.rs.Store(rs)
	return rs, nil
}

func (e *Engine) rulesetKey() (string, error) {
	var b strings.Builder
	for _, name := range rulesetDocuments {
		b.WriteString(name)
		b.WriteByte('=')
		if !e.store.Exists(name) {
			b.WriteString("absent;")
			continue
		}
		doc, err := e.store.Load(name)
		if err != nil {
			return "", err
		}
		b.WriteString(doc.Fingerprint)
		b.WriteByte(';')
	}
	return b.String(), nil
}

func (e *Engine) buildRuleset(key string) (*ruleset, error) {
	shared, err := e.store.Shared()
	if err != nil {
		return nil, err
	}
	uomCfg, err := e.store.UoM()
	if err != nil {
		return nil, err
	}
	extractor, err := uom.New(uomCfg)
	if err != nil {
		return nil, err
	}
	taxonomy, err := e.store.Taxonomy()
	if err != nil {
		return nil, err
	}
	keywords, err := e.store.Keywords()
	if err != nil {
		return nil, err
	}
	maps, err := e.store.SourceMaps()
	if err != nil {
		return nil, err
	}
	vendors, err := e.store.VendorOverrides()
	if err != nil {
		return nil, err
	}
	pipeline, err := classification.NewPipeline(taxonomy, keywords, maps, vendors,
		classification.WithReviewThreshold(e.cfg.ReviewThreshold))
	if err != nil {
		return nil, err
	}

	return &ruleset{
		key:      key,
		shared:   shared,
		uom:      extractor,
		pipeline: pipeline,
	}, nil
}

package stowr

// ListFiles returns every tracked entry, in unspecified order.
func (e *Engine) ListFiles() ([]Entry, error) {
	entries, err := e.idx.List()
	if err != nil {
		return nil, newErr(KindIndex, "list_files", "", err)
	}
	return fromIndexEntries(entries), nil
}

// SearchFiles glob-matches pattern against every tracked entry's path.
func (e *Engine) SearchFiles(pattern string) ([]Entry, error) {
	entries, err := e.idx.Search(pattern)
	if err != nil {
		return nil, newErr(KindIndex, "search_files", pattern, err)
	}
	return fromIndexEntries(entries), nil
}

package bitcask

// merge compacts every immutable datafile into a fresh set of datafile +
// hintfile pairs holding only the entries the keydir still considers live,
// then discards the inputs. The active file is never touched. Output ids
// are allocated starting at lastImmutableMaxID+1 and incremented by one
// each time an output segment rolls over at maxFileSize, per the sparse
// id-allocation scheme: they always sort strictly between the merged
// inputs and the (much higher) active id, so nothing needs to be renamed.
func (dd *datadir) merge(kd *keydir) error {
	dd.mu.Lock()
	defer dd.mu.Unlock()

	ids := dd.sortedIDs()
	if len(ids) < 2 {
		return nil
	}

	immutable := ids[:len(ids)-1]
	nextOutID := immutable[len(immutable)-1] + 1

	var (
		outDF   *datafile
		outHint *hintWriter
	)

	ensureOutput := func() error {
		if outDF != nil {
			return nil
		}

		df, err := openDatafile(dd.fs, dd.dir, nextOutID, false)
		if err != nil {
			return err
		}

		hw, err := createHintWriter(dd.fs, dd.dir, nextOutID)
		if err != nil {
			_ = df.close()
			return err
		}

		nextOutID++
		outDF = df
		outHint = hw

		return nil
	}

	finishOutput := func() error {
		if outDF == nil {
			return nil
		}

		if err := outHint.close(); err != nil {
			return err
		}
		if err := outDF.reopen(true); err != nil {
			return err
		}

		dd.files[outDF.id] = outDF
		outDF, outHint = nil, nil

		return nil
	}

	abort := func(cause error) error {
		_ = finishOutput()
		return cause
	}

	for _, id := range immutable {
		df := dd.files[id]

		err := df.scan(func(e scanEntry) (bool, error) {
			if !e.hasValue {
				return true, nil
			}

			entry, ok := kd.get(e.key)
			if !ok || entry.version != e.version {
				return true, nil
			}

			if err := ensureOutput(); err != nil {
				return false, err
			}

			newLoc, err := outDF.appendPut(e.key, e.value, e.version)
			if err != nil {
				return false, err
			}

			if err := outHint.put(hint{
				version:  newLoc.version,
				valueSz:  newLoc.valueSz,
				valuePos: newLoc.valuePos,
				key:      e.key,
			}); err != nil {
				return false, err
			}

			kd.put(e.key, keydirEntry{
				fileID:   newLoc.fileID,
				valueSz:  newLoc.valueSz,
				valuePos: newLoc.valuePos,
				version:  newLoc.version,
			})

			if size, err := outDF.size(); err == nil && uint64(size) >= dd.opt.maxFileSize {
				if err := finishOutput(); err != nil {
					return false, err
				}
			}

			return true, nil
		})
		if err != nil {
			return abort(err)
		}
	}

	if err := finishOutput(); err != nil {
		return err
	}

	for _, id := range immutable {
		df := dd.files[id]
		if err := df.remove(dd.fs); err != nil {
			return err
		}
		delete(dd.files, id)
	}

	return nil
}

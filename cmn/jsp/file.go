// Package jsp (JSON persistence) saves and loads arbitrary JSON-encoded
// structures to the local filesystem using the same write-temp/fsync/rename
// discipline the blob store uses for object bodies.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"
	"github.com/hafiz-io/hafiz/cmn/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Save JSON-encodes v and durably replaces the contents of filepath: write
// to a sibling temp file, fsync, then rename over the destination. A reader
// never observes a partially written file.
func Save(filepath string, v interface{}) (err error) {
	tmp := cos.GenTempName(filepath, cos.MD5Hex([]byte(filepath))[:8])
	file, err := cos.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rmErr := cos.RemoveFile(tmp); rmErr != nil {
				glog.Errorf("nested (%v): failed to remove %s: %v", err, tmp, rmErr)
			}
		}
	}()

	enc := json.NewEncoder(file)
	if err = enc.Encode(v); err != nil {
		glog.Errorf("failed to encode %s: %v", filepath, err)
		file.Close()
		return err
	}
	if err = cos.FlushClose(file); err != nil {
		glog.Errorf("failed to flush/close %s: %v", tmp, err)
		return err
	}
	if err = os.Rename(tmp, filepath); err != nil {
		return err
	}
	return cos.FsyncDir(filepath)
}

// Load reads and JSON-decodes filepath into v.
func Load(filepath string, v interface{}) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(v)
}

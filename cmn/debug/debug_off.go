//go:build !debug

/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func Assert(bool, ...interface{})            {}
func Assertf(bool, string, ...interface{})   {}
func AssertNoErr(error)                      {}
func Func(f func())                          { _ = f }

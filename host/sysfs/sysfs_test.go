// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sysfs

import "github.com/bitmine-a1/a1drv/host/fs"

func init() {
	fs.Inhibit()
}

// reset restores the open hooks that tests replace.
func reset() {
	ioctlOpen = ioctlOpenDefault
	fileIOOpen = fileIOOpenDefault
}

type ioctlClose struct {
	ioctlErr error
	closeErr error
}

func (i *ioctlClose) Ioctl(op uint, data uintptr) error {
	return i.ioctlErr
}

func (i *ioctlClose) Close() error {
	return i.closeErr
}

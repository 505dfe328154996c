/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/server"
)

func main() {
	if err := server.Run(); err != nil {
		klog.Fatalf("server exited: %v", err)
	}
}
